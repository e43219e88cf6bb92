package ssd1322

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ramWidth is the width of the controller's display RAM in pixels.
const ramWidth = 480

var errHalted = errors.New("ssd1322: halted")

// Opts is the configuration for the SSD1322 display.
type Opts struct {
	// Display dimensions in pixels
	W int // Width (default: 256, must be a multiple of 8 and ≤480)
	H int // Height (default: 64, must be ≤128)

	// Rotation and mirroring
	Rotated       bool // 180° rotation
	Sequential    bool // Sequential COM pin configuration
	SwapTopBottom bool // Swap top/bottom display halves

	// Contrast current (0-255). Zero selects the maximum.
	Contrast byte

	// Optional hardware reset pin
	RST gpio.PinIO
}

// Dev is the device handle for the SSD1322 display.
type Dev struct {
	// Communication
	c   conn.Conn   // SPI connection
	dc  gpio.PinOut // Data/Command pin
	rst gpio.PinIO  // Reset pin (optional)

	// Display geometry
	rect         image.Rectangle
	columnOffset int // For centering on 480-column RAM

	// Pixel buffers
	next   frame  // Frame being drawn
	shown  frame  // Frame on the panel
	region []byte // Scratch for the changed rectangle
	cmd    [7]byte

	halted bool
}

// NewSPI creates a new SSD1322 device connected via SPI and initializes the
// panel.
//
// The SPI port is configured for 10MHz, Mode0 (CPOL=0, CPHA=0), 8-bit transfers.
// The dc (Data/Command) GPIO pin must be provided and configured as an output.
//
// opts can be nil to use defaults (256x64 display).
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{W: 256, H: 64}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("ssd1322: dc pin is required")
	}

	// SSD1322 supports Mode0 (CPOL=0, CPHA=0) or Mode3 (CPOL=1, CPHA=1);
	// 10MHz is conservative, the controller accepts up to 20MHz.
	c, err := p.Connect(10*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("ssd1322: %w", err)
	}

	d := newDev(c, dc, opts)
	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

func newDev(c conn.Conn, dc gpio.PinOut, opts *Opts) *Dev {
	rect := image.Rect(0, 0, opts.W, opts.H)
	return &Dev{
		c:            c,
		dc:           dc,
		rst:          opts.RST,
		rect:         rect,
		columnOffset: (ramWidth - opts.W) / 2,
		next:         newFrame(rect),
		shown:        newFrame(rect),
		region:       make([]byte, opts.W*opts.H/2),
	}
}

func (o *Opts) validate() error {
	if o.W <= 0 || o.W%8 != 0 || o.W > ramWidth {
		return errors.New("ssd1322: width must be a multiple of 8 between 8 and 480")
	}
	if o.H <= 0 || o.H > 128 {
		return errors.New("ssd1322: height must be between 1 and 128")
	}
	return nil
}

// init sends the initialization sequence to the display.
func (d *Dev) init(opts *Opts) error {
	// Hardware reset sequence (if RST pin is provided)
	if d.rst != nil {
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("ssd1322: failed to pull RST low: %w", err)
		}
		time.Sleep(200 * time.Millisecond)

		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("ssd1322: failed to pull RST high: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := d.sendCommands(initSequence(opts)); err != nil {
		return fmt.Errorf("ssd1322: init: %w", err)
	}

	// Clear display RAM
	if err := d.writeRect(0, 0, d.rect.Dx(), d.rect.Dy(), d.region); err != nil {
		return fmt.Errorf("ssd1322: clear: %w", err)
	}

	// Turn display ON
	return d.sendCommands([]byte{0xAF})
}

// initSequence builds the power-up command list for opts.
func initSequence(opts *Opts) []byte {
	// Remap settings: adjust for rotation and mirroring
	remap1, remap2 := byte(0x14), byte(0x11)
	if opts.Rotated {
		remap1 = 0x06
	}
	if opts.Sequential {
		remap2 |= 0x01
	}
	if opts.SwapTopBottom {
		remap2 |= 0x02
	}

	contrast := opts.Contrast
	if contrast == 0 {
		contrast = 0xFF
	}

	return []byte{
		0xFD, 0x12, // Unlock command codes
		0xAE,       // Display OFF
		0xB3, 0xF2, // Clock divider and oscillator frequency
		0xCA, byte(opts.H - 1), // MUX ratio
		0xA2, 0x00, // Display offset
		0xA1, 0x00, // Start line
		0xA0, remap1, remap2, // Remap and dual COM mode
		0xAB, 0x01, // Function selection (enable internal VDD)
		0xB4, 0xA0, 0xFD, // VSL (display enhancement)
		0xC1, contrast, // Contrast current
		0xC7, 0x0F, // Master contrast
		0xB9,       // Use default grayscale table
		0xB1, 0xE2, // Phase length
		0xD1, 0x82, 0x20, // Display enhancements
		0xBB, 0x1F, // Pre-charge voltage
		0xB6, 0x08, // Second pre-charge period
		0xBE, 0x07, // VCOMH voltage
		0xA6, // Normal display mode
		0xA9, // Exit partial display mode
	}
}

// sendCommands sends a slice of command bytes.
func (d *Dev) sendCommands(cmds []byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	return d.c.Tx(cmds, nil)
}

// sendData sends a slice of data bytes.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.c.Tx(data, nil)
}

// writeRect writes pixel data to a rectangular region of the display. x and
// width must be multiples of 4: one column address covers 4 pixels.
func (d *Dev) writeRect(x, y, width, height int, pixels []byte) error {
	d.cmd = [7]byte{
		0x15, byte((x + d.columnOffset) / 4), byte((x + width - 1 + d.columnOffset) / 4), // Column address
		0x75, byte(y), byte(y + height - 1), // Row address
		0x5C, // Enable write to RAM
	}
	if err := d.sendCommands(d.cmd[:]); err != nil {
		return err
	}
	return d.sendData(pixels[:width*height/2])
}

// Size returns the panel dimensions. It implements drivers.Displayer.
func (d *Dev) Size() (x, y int16) {
	return int16(d.rect.Dx()), int16(d.rect.Dy())
}

// SetPixel sets a pixel of the back buffer. It implements drivers.Displayer.
func (d *Dev) SetPixel(x, y int16, c color.RGBA) {
	d.next.setGray4(int(x), int(y), Gray4{Y: luma4(uint32(c.R)*0x101, uint32(c.G)*0x101, uint32(c.B)*0x101)})
}

// Display sends the part of the back buffer that differs from the panel. It
// implements drivers.Displayer.
func (d *Dev) Display() error {
	if d.halted {
		return errHalted
	}

	minCol, maxCol, minRow, maxRow := d.calculateDiff()
	if minCol > maxCol {
		// No changes
		return nil
	}

	w, h := maxCol-minCol+1, maxRow-minRow+1
	d.extractRegion(minCol, maxCol, minRow, maxRow)
	if err := d.writeRect(minCol, minRow, w, h, d.region); err != nil {
		return err
	}
	copy(d.shown.pix, d.next.pix)
	return nil
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return Gray4Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw composes src into the back buffer and sends the changes. It
// implements periph.io display.Drawer.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted {
		return errHalted
	}
	draw.Draw(&d.next, dst.Intersect(d.rect), src, sp, draw.Src)
	return d.Display()
}

// calculateDiff compares the back buffer with the panel contents and returns
// the changed rectangle, widened to 4-pixel columns, or (1, 0, 0, 0) if
// nothing changed.
func (d *Dev) calculateDiff() (minCol, maxCol, minRow, maxRow int) {
	width := d.rect.Dx()
	height := d.rect.Dy()
	stride := d.next.stride

	minRow, maxRow = height, -1
	minCol, maxCol = width, -1

	for y := 0; y < height; y++ {
		row := d.next.pix[y*stride : (y+1)*stride]
		old := d.shown.pix[y*stride : (y+1)*stride]
		if bytes.Equal(row, old) {
			continue
		}
		if y < minRow {
			minRow = y
		}
		maxRow = y

		// Each byte holds 2 pixels
		for x := range row {
			if row[x] == old[x] {
				continue
			}
			if x*2 < minCol {
				minCol = x * 2
			}
			if x*2+1 > maxCol {
				maxCol = x*2 + 1
			}
		}
	}

	if maxRow < 0 {
		return 1, 0, 0, 0
	}
	minCol -= minCol % 4
	maxCol += 3 - maxCol%4
	return minCol, maxCol, minRow, maxRow
}

// extractRegion copies a rectangle of the back buffer into d.region.
func (d *Dev) extractRegion(minCol, maxCol, minRow, maxRow int) {
	byteWidth := (maxCol - minCol + 1) / 2
	dst := 0
	for y := minRow; y <= maxRow; y++ {
		src := y*d.next.stride + minCol/2
		copy(d.region[dst:], d.next.pix[src:src+byteWidth])
		dst += byteWidth
	}
}

// Halt powers off the display.
// After calling Halt, the display will not respond to further commands
// until the device is re-initialized.
func (d *Dev) Halt() error {
	d.halted = true
	return d.sendCommands([]byte{0xAE}) // Display OFF
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("ssd1322.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}
