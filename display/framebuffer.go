package display

import (
	"image"
	"image/color"
	"sync"
)

// Framebuffer is an in-memory buffered panel. Drawing goes to a back buffer
// and Display copies it to the front buffer that readers see, so a reader
// never observes a half-drawn frame.
type Framebuffer struct {
	back rgbaTarget

	mu       sync.Mutex
	front    *image.RGBA
	presents int
}

// NewFramebuffer returns a w×h Framebuffer.
func NewFramebuffer(w, h int) *Framebuffer {
	r := image.Rect(0, 0, w, h)
	return &Framebuffer{
		back:  rgbaTarget{img: image.NewRGBA(r)},
		front: image.NewRGBA(r),
	}
}

// Size returns the dimensions in pixels.
func (f *Framebuffer) Size() (x, y int16) {
	return f.back.Size()
}

// SetPixel sets a back buffer pixel. Out of range coordinates are ignored.
func (f *Framebuffer) SetPixel(x, y int16, c color.RGBA) {
	f.back.SetPixel(x, y, c)
}

// FillRectangle fills part of the back buffer.
func (f *Framebuffer) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	f.back.fill(image.Rect(int(x), int(y), int(x)+int(width), int(y)+int(height)), c)
	return nil
}

// Display publishes the back buffer.
func (f *Framebuffer) Display() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.front.Pix, f.back.img.Pix)
	f.presents++
	return nil
}

// Presents returns how many times Display has been called.
func (f *Framebuffer) Presents() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presents
}

// At returns a front buffer pixel.
func (f *Framebuffer) At(x, y int) color.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.front.RGBAAt(x, y)
}

// CopyFront copies the front buffer, as RGBA bytes, into dst.
func (f *Framebuffer) CopyFront(dst []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(dst, f.front.Pix)
}

// Bounds returns the framebuffer rectangle.
func (f *Framebuffer) Bounds() image.Rectangle {
	return f.front.Rect
}
