// Package latch turns a pin edge into a latched interrupt event.
//
// A Latch moves through three states: Unconfigured (the zero value),
// Configured (pin bound, interrupt routed) and Enabled (edges are delivered).
// There is no way back; the button stays armed for the life of the program.
//
// Every firing must be acknowledged before its handler returns or the
// controller re-enters the handler immediately. By default the Latch does
// this itself with a deferred Acknowledge around the handler, so no exit path
// can skip it. Opts.ManualAck hands that duty back to the handler.
package latch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flavioheleno/presscount/irq"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrPinUnavailable is returned when the pin cannot be set up for edge
	// detection.
	ErrPinUnavailable = errors.New("latch: pin unavailable")
	// ErrAlreadyBound is returned when the pin is already routed to a handler.
	ErrAlreadyBound = errors.New("latch: pin already bound")
	// ErrState is returned for a transition the state machine does not allow.
	ErrState = errors.New("latch: invalid state")
)

// State is the lifecycle state of a Latch.
type State uint32

const (
	Unconfigured State = iota
	Configured
	Enabled
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Configured:
		return "Configured"
	case Enabled:
		return "Enabled"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// EdgeSource is a physical (or simulated) input pin able to report edges.
type EdgeSource interface {
	// Name identifies the pin; it is used as the interrupt source name.
	Name() string
	// Listen configures the pin and calls notify once per detected edge.
	// notify may be called from interrupt context.
	Listen(pull gpio.Pull, edge gpio.Edge, notify func()) error
}

// Opts configures a Latch.
type Opts struct {
	// Pull selects the pin's resistor. The zero value (gpio.Float) means
	// gpio.PullUp; buttons with an external resistor use gpio.PullNoChange.
	Pull gpio.Pull

	Edge     gpio.Edge    // default: gpio.FallingEdge
	Priority irq.Priority // interrupt priority of the line

	// Debounce drops edges closer than this to the last accepted one. Zero
	// accepts every edge.
	Debounce time.Duration

	// ManualAck leaves Acknowledge to the handler.
	ManualAck bool

	Now    func() time.Time // default: time.Now
	Logger *slog.Logger     // default: discard
}

// Latch binds one pin edge to one handler.
type Latch struct {
	state   atomic.Uint32
	src     EdgeSource
	ctrl    *irq.Controller
	line    *irq.Line
	handler func()
	manual  bool

	debounce time.Duration
	now      func() time.Time
	last     atomic.Int64 // unix nanoseconds of the last accepted edge
	accepted atomic.Bool
	gate     atomic.Bool

	dropped atomic.Uint32
	log     *slog.Logger
}

// State returns the current lifecycle state.
func (l *Latch) State() State { return State(l.state.Load()) }

// Configure binds src and routes its edge to handler on ctrl. opts can be nil
// to use defaults (pull-up, falling edge).
func (l *Latch) Configure(ctrl *irq.Controller, src EdgeSource, opts *Opts, handler func()) error {
	if l.State() != Unconfigured {
		return fmt.Errorf("%w: Configure in state %s", ErrState, l.State())
	}
	if ctrl == nil || handler == nil {
		return errors.New("latch: controller and handler are required")
	}
	if src == nil {
		return fmt.Errorf("%w: no pin", ErrPinUnavailable)
	}

	o := Opts{Pull: gpio.PullUp, Edge: gpio.FallingEdge}
	if opts != nil {
		o = *opts
		if o.Pull == gpio.Float {
			o.Pull = gpio.PullUp
		}
		if o.Edge == gpio.NoEdge {
			o.Edge = gpio.FallingEdge
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	l.ctrl = ctrl
	l.src = src
	l.handler = handler
	l.manual = o.ManualAck
	l.debounce = o.Debounce
	l.now = o.Now
	l.log = o.Logger.With("pin", src.Name())

	line, err := ctrl.Register(src.Name(), o.Priority, l.serve)
	if err != nil {
		if errors.Is(err, irq.ErrAlreadyRegistered) {
			return fmt.Errorf("%w: %s", ErrAlreadyBound, src.Name())
		}
		return err
	}
	l.line = line

	if err := src.Listen(o.Pull, o.Edge, l.notify); err != nil {
		ctrl.Unregister(line)
		l.line = nil
		return fmt.Errorf("%w: %s: %w", ErrPinUnavailable, src.Name(), err)
	}

	l.state.Store(uint32(Configured))
	l.log.Debug("latch: configured", "pull", o.Pull, "edge", o.Edge, "priority", o.Priority)
	return nil
}

// Enable arms the latch. From here on the handler may run between any two
// foreground instructions, so every shared cell it uses must already be
// installed.
func (l *Latch) Enable() error {
	if l.State() != Configured {
		return fmt.Errorf("%w: Enable in state %s", ErrState, l.State())
	}
	// The line is armed first; an edge in between still sees Configured
	// and is counted as dropped.
	l.ctrl.Enable(l.line)
	l.state.Store(uint32(Enabled))
	return nil
}

// Acknowledge clears the edge being serviced. With ManualAck it must be
// called exactly once per firing, before the handler returns.
func (l *Latch) Acknowledge() {
	l.line.Ack()
}

// Line returns the interrupt line, or nil before Configure.
func (l *Latch) Line() *irq.Line { return l.line }

// Dropped returns how many edges were discarded, either because the latch
// was not enabled yet or by debouncing.
func (l *Latch) Dropped() uint32 { return l.dropped.Load() }

// notify is called by the pin for every raw edge.
func (l *Latch) notify() {
	// notify may run in interrupt context: count, never log.
	if l.State() != Enabled {
		l.dropped.Add(1)
		return
	}
	if l.debounce > 0 && !l.accept() {
		l.dropped.Add(1)
		return
	}
	l.ctrl.Raise(l.line)
}

// accept applies the debounce window. Concurrent notifiers serialize on gate
// without blocking: one that finds it held is a bounce of the same press and
// is dropped.
func (l *Latch) accept() bool {
	if !l.gate.CompareAndSwap(false, true) {
		return false
	}
	defer l.gate.Store(false)

	now := l.now().UnixNano()
	if l.accepted.Load() && time.Duration(now-l.last.Load()) < l.debounce {
		return false
	}
	l.last.Store(now)
	l.accepted.Store(true)
	return true
}

// serve is the handler registered with the controller.
func (l *Latch) serve() {
	if !l.manual {
		defer l.line.Ack()
	}
	l.handler()
}
