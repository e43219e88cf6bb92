package display

import (
	"image"
	"image/color"

	"tinygo.org/x/drivers"
)

// Present tells a DisplayerSink when pixels reach the panel.
type Present uint8

const (
	// Buffered drivers keep pixels in RAM until Display is called
	// (ssd1306, ssd1322).
	Buffered Present = iota
	// Direct drivers write every pixel to the panel immediately (st7789,
	// ili9341).
	Direct
)

func (p Present) String() string {
	if p == Direct {
		return "direct"
	}
	return "buffered"
}

// rectFiller is implemented by drivers with a hardware or bulk fill.
type rectFiller interface {
	FillRectangle(x, y, width, height int16, c color.RGBA) error
}

// DisplayerSink adapts a TinyGo display driver to Sink.
type DisplayerSink struct {
	d       drivers.Displayer
	present Present
}

// NewDisplayerSink wraps d.
func NewDisplayerSink(d drivers.Displayer, p Present) *DisplayerSink {
	return &DisplayerSink{d: d, present: p}
}

// Clear fills the surface, using the driver's FillRectangle when available.
func (s *DisplayerSink) Clear(bg color.RGBA) error {
	w, h := s.d.Size()
	if f, ok := s.d.(rectFiller); ok {
		return f.FillRectangle(0, 0, w, h, bg)
	}
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			s.d.SetPixel(x, y, bg)
		}
	}
	return nil
}

// DrawText draws text into the driver.
func (s *DisplayerSink) DrawText(text []byte, at image.Point, style Style) error {
	return drawText(s.d, text, at, style)
}

// Flush calls Display on buffered drivers.
func (s *DisplayerSink) Flush() error {
	if s.present == Direct {
		return nil
	}
	return s.d.Display()
}
