package ssd1322

import (
	"image"
	"image/color"
)

// Gray4 is a 4-bit grayscale color (0-15). Only the lower 4 bits of Y are
// used.
type Gray4 struct {
	Y uint8
}

// RGBA scales the 4-bit level to 16 bits per channel.
func (c Gray4) RGBA() (r, g, b, a uint32) {
	// 0xF * 0x1111 = 0xFFFF
	y := uint32(c.Y&0x0F) * 0x1111
	return y, y, y, 0xFFFF
}

// Gray4Model converts colors to Gray4.
var Gray4Model = color.ModelFunc(toGray4)

func toGray4(c color.Color) color.Color {
	if g, ok := c.(Gray4); ok {
		return g
	}
	r, g, b, _ := c.RGBA()
	return Gray4{Y: luma4(r, g, b)}
}

// luma4 reduces 16-bit channels to a 4-bit level (0.299R + 0.587G + 0.114B).
func luma4(r, g, b uint32) uint8 {
	y := (299*r + 587*g + 114*b + 500) / 1000
	return uint8(y >> 12)
}

// frame is a nibble-packed grayscale buffer in panel RAM order: two pixels
// per byte, the left pixel in the high nibble.
type frame struct {
	pix    []byte
	stride int
	rect   image.Rectangle
}

func newFrame(r image.Rectangle) frame {
	stride := r.Dx() / 2
	return frame{pix: make([]byte, stride*r.Dy()), stride: stride, rect: r}
}

func (f *frame) ColorModel() color.Model { return Gray4Model }

func (f *frame) Bounds() image.Rectangle { return f.rect }

func (f *frame) At(x, y int) color.Color {
	return f.gray4At(x, y)
}

func (f *frame) Set(x, y int, c color.Color) {
	f.setGray4(x, y, Gray4Model.Convert(c).(Gray4))
}

func (f *frame) gray4At(x, y int) Gray4 {
	if !(image.Point{X: x, Y: y}.In(f.rect)) {
		return Gray4{}
	}
	offset, shift := f.pixOffset(x, y)
	return Gray4{Y: (f.pix[offset] >> shift) & 0x0F}
}

func (f *frame) setGray4(x, y int, c Gray4) {
	if !(image.Point{X: x, Y: y}.In(f.rect)) {
		return
	}
	offset, shift := f.pixOffset(x, y)
	f.pix[offset] = (f.pix[offset] &^ (0x0F << shift)) | ((c.Y & 0x0F) << shift)
}

// pixOffset returns the byte offset and bit shift of (x, y). Even x lands in
// the high nibble.
func (f *frame) pixOffset(x, y int) (offset int, shift uint) {
	offset = (y-f.rect.Min.Y)*f.stride + (x-f.rect.Min.X)/2
	shift = uint(4 * (1 - (x & 1)))
	return
}
