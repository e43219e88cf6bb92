// Package presscount counts button presses and shows the running total on a
// small display.
//
// At boot a prompt is drawn. Every edge on the button pin then fires an
// interrupt whose handler increments the count and redraws it. The
// foreground only sets things up and idles (see Run).
//
// The button latch, the display sink and the counter are owned by a Device
// and live in cell.Cells, so the interrupt handler and the foreground never
// touch them at the same time.
//
// Basic usage:
//
//	ctrl := irq.New(nil)
//	dev, err := presscount.New(ctrl, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := dev.Setup(sink, button); err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(dev.Run(ctx, presscount.NewTicker()))
package presscount

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flavioheleno/presscount/cell"
	"github.com/flavioheleno/presscount/counter"
	"github.com/flavioheleno/presscount/display"
	"github.com/flavioheleno/presscount/irq"
	"github.com/flavioheleno/presscount/latch"
	"tinygo.org/x/tinyfont/freemono"
	"tinygo.org/x/tinyfont/proggy"
)

// DefaultPrompt is drawn before the first press.
const DefaultPrompt = "Press Button!"

// ErrDisplay wraps the sink error that stopped the handler under the Halt
// policy.
var ErrDisplay = errors.New("presscount: display update failed")

// ErrorPolicy selects what the handler does when a frame cannot be drawn.
type ErrorPolicy uint8

const (
	// Halt panics with an error wrapping ErrDisplay.
	Halt ErrorPolicy = iota
	// Skip logs the error, counts a dropped frame and keeps the increment.
	Skip
)

func (p ErrorPolicy) String() string {
	switch p {
	case Halt:
		return "halt"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", uint8(p))
	}
}

// ParseErrorPolicy parses "halt" or "skip".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "halt":
		return Halt, nil
	case "skip":
		return Skip, nil
	}
	return 0, fmt.Errorf("presscount: unknown error policy %q", s)
}

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// Opts configures a Device.
type Opts struct {
	// Prompt is shown at boot (default: DefaultPrompt).
	Prompt string

	// Text styles. A zero Style selects the defaults: a small font for the
	// prompt and a larger one for the count, both white.
	PromptStyle display.Style
	CountStyle  display.Style

	Origin     image.Point // top-left corner of the text
	Background color.RGBA  // default: black

	// Button interrupt.
	Priority irq.Priority
	Debounce time.Duration

	OnDisplayError ErrorPolicy

	Tick   time.Duration // idle loop period (default: 1s)
	Logger *slog.Logger  // default: discard
}

// DefaultOpts returns the options New uses when given nil.
func DefaultOpts() Opts {
	return Opts{
		Prompt:      DefaultPrompt,
		PromptStyle: display.Style{Font: &proggy.TinySZ8pt7b, Color: white},
		CountStyle:  display.Style{Font: &freemono.Regular12pt7b, Color: white},
		Background:  black,
		Tick:        time.Second,
	}
}

// Validate checks that the options can draw both frames.
func (o *Opts) Validate() error {
	if o.Prompt == "" {
		return errors.New("presscount: empty prompt")
	}
	if o.PromptStyle.Font == nil || o.CountStyle.Font == nil {
		return errors.New("presscount: prompt and count styles need a font")
	}
	if o.OnDisplayError > Skip {
		return fmt.Errorf("presscount: invalid error policy %s", o.OnDisplayError)
	}
	return nil
}

// Device is the button counter. Build it with New and arm it with Setup;
// there should be one per button.
type Device struct {
	ctrl *irq.Controller
	opts Opts
	log  *slog.Logger

	button cell.Cell[*latch.Latch]
	sink   cell.Cell[display.Sink]
	count  cell.Cell[counter.Counter]
	events cell.Cell[eventLog]
	digits counter.Digits // only touched by the handler

	reported uint32 // last count logged by report

	setup   atomic.Bool
	dropped atomic.Uint32
}

// New returns a Device dispatched by ctrl. opts can be nil to use
// DefaultOpts. Zero fields of a non-nil opts are filled from DefaultOpts,
// except Origin, Priority, Debounce and OnDisplayError whose zero values are
// meaningful.
func New(ctrl *irq.Controller, opts *Opts) (*Device, error) {
	if ctrl == nil {
		return nil, errors.New("presscount: interrupt controller is required")
	}
	o := DefaultOpts()
	if opts != nil {
		def := o
		o = *opts
		if o.Prompt == "" {
			o.Prompt = def.Prompt
		}
		if o.PromptStyle == (display.Style{}) {
			o.PromptStyle = def.PromptStyle
		}
		if o.CountStyle == (display.Style{}) {
			o.CountStyle = def.CountStyle
		}
		if o.Background == (color.RGBA{}) {
			o.Background = def.Background
		}
		if o.Tick <= 0 {
			o.Tick = def.Tick
		}
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return &Device{ctrl: ctrl, opts: o, log: o.Logger}, nil
}

// Setup draws the prompt, binds the button and arms its interrupt, in that
// order. Nothing is armed if any step fails. Setup can only succeed once.
func (d *Device) Setup(sink display.Sink, button latch.EdgeSource) error {
	if sink == nil {
		return errors.New("presscount: display sink is required")
	}
	if d.setup.Load() {
		return errors.New("presscount: already set up")
	}

	if err := d.ShowPrompt(sink); err != nil {
		return err
	}

	l := new(latch.Latch)
	err := l.Configure(d.ctrl, button, &latch.Opts{
		Priority: d.opts.Priority,
		Debounce: d.opts.Debounce,
		Logger:   d.log,
	}, d.onPress)
	if err != nil {
		return fmt.Errorf("presscount: button: %w", err)
	}

	// The handler borrows all three cells; they must be filled before the
	// latch is enabled.
	cell.With(func(cs cell.CS) {
		d.button.Install(cs, l)
		d.sink.Install(cs, sink)
		d.count.Install(cs, counter.Counter{})
		d.events.Install(cs, eventLog{})
	})

	if err := l.Enable(); err != nil {
		return fmt.Errorf("presscount: button: %w", err)
	}
	d.setup.Store(true)
	d.log.Info("presscount: ready", "pin", button.Name())
	return nil
}

// ShowPrompt draws the prompt frame on sink. Setup calls it first; it is
// exported for hosts that only want the prompt.
func (d *Device) ShowPrompt(sink display.Sink) error {
	err := display.Frame(sink, d.opts.Background, []byte(d.opts.Prompt), d.opts.Origin, d.opts.PromptStyle)
	if err != nil {
		return fmt.Errorf("presscount: prompt: %w", err)
	}
	return nil
}

// onPress runs in interrupt context once per accepted edge. The latch
// acknowledges the edge after it returns. It must not allocate, so nothing is
// logged here: outcomes are left in the events cell for Run to report.
func (d *Device) onPress() {
	var (
		n   uint32
		err error
	)
	cell.With(func(cs cell.CS) {
		c := d.count.Borrow(cs)
		ev := d.events.Borrow(cs)
		if c.Increment() {
			ev.saturated = true
		}
		n = c.Value()
		text := counter.Format(&d.digits, n)
		err = display.Frame(*d.sink.Borrow(cs), d.opts.Background, text, d.opts.Origin, d.opts.CountStyle)
		if err != nil && d.opts.OnDisplayError == Skip {
			ev.dropped++
			ev.lastErr = err
		}
	})

	if err == nil {
		return
	}
	if d.opts.OnDisplayError == Skip {
		d.dropped.Add(1)
		return
	}
	panic(fmt.Errorf("%w: count %d: %w", ErrDisplay, n, err))
}

// eventLog is what the handler leaves behind for the foreground to log.
type eventLog struct {
	saturated bool
	dropped   uint32
	lastErr   error
}

// report logs what happened since the previous call: new presses, dropped
// frames and saturation. It runs in the foreground.
func (d *Device) report() {
	var (
		n  uint32
		ev eventLog
		ok bool
	)
	cell.With(func(cs cell.CS) {
		if ok = d.events.Installed(cs); !ok {
			return
		}
		n = d.count.Borrow(cs).Value()
		p := d.events.Borrow(cs)
		ev, *p = *p, eventLog{}
	})
	if !ok {
		return
	}

	if n != d.reported {
		d.log.Debug("button pressed", "count", n, "presses", n-d.reported)
		d.reported = n
	}
	if ev.dropped > 0 {
		d.log.Warn("presscount: frames dropped", "count", n, "dropped", ev.dropped, "err", ev.lastErr)
	}
	if ev.saturated {
		d.log.Warn("presscount: counter saturated", "count", n)
	}
}

// Count returns the number of presses so far. It is zero before Setup.
func (d *Device) Count() uint32 {
	var n uint32
	cell.With(func(cs cell.CS) {
		if d.count.Installed(cs) {
			n = d.count.Borrow(cs).Value()
		}
	})
	return n
}

// DroppedFrames returns how many frames the Skip policy discarded.
func (d *Device) DroppedFrames() uint32 {
	return d.dropped.Load()
}

// Button returns the bound latch, or nil before Setup.
func (d *Device) Button() *latch.Latch {
	var l *latch.Latch
	cell.With(func(cs cell.CS) {
		if d.button.Installed(cs) {
			l = *d.button.Borrow(cs)
		}
	})
	return l
}
