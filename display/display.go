// Package display renders short text frames on a panel.
//
// A Sink is the three-call surface every frame goes through: Clear, DrawText,
// Flush. Buffered panels only show the frame on Flush; panels that draw
// straight to glass treat Flush as a no-op. Callers issue the same sequence
// either way, normally through Frame.
//
// Two adapters are provided: DisplayerSink for TinyGo drivers
// (tinygo.org/x/drivers.Displayer) and DrawerSink for periph.io drivers
// (periph.io/x/conn/v3/display.Drawer). Text is rendered with tinyfont.
package display

import (
	"errors"
	"image"
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

var errNoFont = errors.New("display: style has no font")

// Baseline selects what the Y coordinate of a text origin refers to.
type Baseline uint8

const (
	// BaselineTop puts the top of the tallest glyph on the origin.
	BaselineTop Baseline = iota
	// BaselineAlphabetic puts the font baseline on the origin.
	BaselineAlphabetic
)

// Style is how text is drawn.
type Style struct {
	Font     tinyfont.Fonter
	Color    color.RGBA
	Baseline Baseline
}

// Sink is a panel that can show one frame of text at a time.
//
// All methods are synchronous and may block on the bus for the duration of a
// transfer.
type Sink interface {
	// Clear fills the whole surface with bg.
	Clear(bg color.RGBA) error
	// DrawText draws ASCII text at the given origin.
	DrawText(text []byte, at image.Point, style Style) error
	// Flush makes the frame visible.
	Flush() error
}

// Frame draws text alone on a bg background: Clear, DrawText, Flush. It stops
// at the first error and does not retry.
func Frame(s Sink, bg color.RGBA, text []byte, at image.Point, style Style) error {
	if err := s.Clear(bg); err != nil {
		return err
	}
	if err := s.DrawText(text, at, style); err != nil {
		return err
	}
	return s.Flush()
}

// drawText renders text glyph by glyph, straight onto d. tinyfont.DrawChar is
// avoided because it wraps d in a rotation adapter on the heap.
func drawText(d drivers.Displayer, text []byte, at image.Point, st Style) error {
	if st.Font == nil {
		return errNoFont
	}
	x := int16(at.X)
	y := int16(at.Y)
	if st.Baseline == BaselineTop {
		y += ascent(st.Font, text)
	}
	for _, b := range text {
		g := st.Font.GetGlyph(rune(b))
		g.Draw(d, x, y, st.Color)
		x += int16(g.Info().XAdvance)
	}
	return nil
}

// ascent returns how far the glyphs of text reach above the baseline.
func ascent(f tinyfont.Fonter, text []byte) int16 {
	var a int16
	for _, b := range text {
		if off := -int16(f.GetGlyph(rune(b)).Info().YOffset); off > a {
			a = off
		}
	}
	return a
}
