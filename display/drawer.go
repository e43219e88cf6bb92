package display

import (
	"image"
	"image/color"

	periphdisplay "periph.io/x/conn/v3/display"
)

// DrawerSink adapts a periph.io display to Sink. Frames are composed in an
// RGBA back buffer allocated once, and Flush hands the buffer to the driver,
// which converts it to the panel's pixel format.
type DrawerSink struct {
	d    periphdisplay.Drawer
	back rgbaTarget
}

// NewDrawerSink wraps d.
func NewDrawerSink(d periphdisplay.Drawer) *DrawerSink {
	return &DrawerSink{
		d:    d,
		back: rgbaTarget{img: image.NewRGBA(d.Bounds())},
	}
}

// Clear fills the back buffer.
func (s *DrawerSink) Clear(bg color.RGBA) error {
	s.back.fill(s.back.img.Rect, bg)
	return nil
}

// DrawText draws text into the back buffer.
func (s *DrawerSink) DrawText(text []byte, at image.Point, style Style) error {
	return drawText(&s.back, text, at, style)
}

// Flush sends the back buffer to the panel.
func (s *DrawerSink) Flush() error {
	r := s.d.Bounds()
	return s.d.Draw(r, s.back.img, r.Min)
}

// rgbaTarget lets tinyfont draw into an *image.RGBA.
type rgbaTarget struct {
	img *image.RGBA
}

func (t *rgbaTarget) Size() (x, y int16) {
	b := t.img.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (t *rgbaTarget) SetPixel(x, y int16, c color.RGBA) {
	b := t.img.Bounds()
	t.img.SetRGBA(b.Min.X+int(x), b.Min.Y+int(y), c)
}

func (t *rgbaTarget) Display() error { return nil }

// fill paints r, clipped to the image, with c. image.Uniform would box c on
// every call.
func (t *rgbaTarget) fill(r image.Rectangle, c color.RGBA) {
	r = r.Intersect(t.img.Rect)
	if r.Empty() {
		return
	}
	px := [4]byte{c.R, c.G, c.B, c.A}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := t.img.Pix[t.img.PixOffset(r.Min.X, y):t.img.PixOffset(r.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			copy(row[i:i+4], px[:])
		}
	}
}
