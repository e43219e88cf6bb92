// Package ssd1322 controls a SSD1322 OLED display via SPI.
//
// The SSD1322 is a 4-bit grayscale OLED controller supporting up to 480×128
// pixels. Common panels are 256×64 and 128×64.
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V (or 5V depending on display)
//	SCL/CLK     → SPI Clock (SCLK)
//	SDA/MOSI    → SPI Data (MOSI)
//	DC          → GPIO (any available pin)
//	CS          → SPI Chip Select (or GND if always selected)
//	RES         → Optional: GPIO for hardware reset
//
// # Drawing
//
// The device keeps a back buffer. SetPixel and Draw write to it, and Display
// sends only the smallest changed rectangle, widened to the controller's
// 4-pixel column granularity. A frame that only changes a few digits costs a
// few hundred bytes on the bus. All buffers are allocated by NewSPI; Display
// itself does not allocate, so it can run from an interrupt handler.
//
//	dev, err := ssd1322.NewSPI(port, dc, &ssd1322.Opts{W: 256, H: 64})
//	if err != nil {
//		return err
//	}
//	dev.SetPixel(10, 20, color.RGBA{R: 255, G: 255, B: 255, A: 255})
//	err = dev.Display()
//
// Dev implements tinygo.org/x/drivers.Displayer (Size, SetPixel, Display), so
// tinyfont can render on it, and periph.io display.Drawer (Bounds,
// ColorModel, Draw, Halt).
//
// # Hardware Reset
//
// When Opts.RST is set, NewSPI pulls it low for 200ms and high for 200ms
// before sending the init sequence. Without it the driver relies on the
// power-on reset.
//
// # Display Resolution
//
// Width must be a multiple of 8 and ≤480, so that the panel window centred in
// the 480-column RAM starts on a column address. Height must be ≤128.
//
// # Datasheet
//
// https://www.displayfuture.com/Display/datasheet/controller/SSD1322.pdf
package ssd1322
