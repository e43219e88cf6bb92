// Package irq models the interrupt controller that routes pin edges to
// handlers.
//
// Each source is a Line. An edge latches a pending flag on its line with
// Raise; the controller then runs the line's handler until the flag has been
// cleared with Ack. Handlers never nest: an edge that arrives while a handler
// runs stays pending and is serviced once the running handler returns.
//
// On TinyGo the dispatcher runs directly inside the hardware ISR. On the host
// it runs on whichever goroutine delivered the edge.
package irq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyRegistered is returned when a source name is routed twice.
	ErrAlreadyRegistered = errors.New("irq: source already registered")
	// ErrInterruptStorm is recorded when a handler keeps returning without
	// acknowledging its edge.
	ErrInterruptStorm = errors.New("irq: interrupt storm")
)

// Priority orders pending lines; higher values are serviced first.
type Priority uint8

// Opts configures a Controller.
type Opts struct {
	// MaxRefire is how many back-to-back unacknowledged firings a line may
	// take before it is disabled (default: 64).
	MaxRefire int
	// Logger receives storm and double-ack reports (default: discard).
	Logger *slog.Logger
}

// Controller dispatches pending lines one at a time.
type Controller struct {
	mu    sync.Mutex              // serializes Register and Unregister
	lines atomic.Pointer[[]*Line] // replaced, never modified in place

	active    atomic.Bool
	maxRefire int
	log       *slog.Logger

	errMu sync.Mutex
	err   error
}

// New returns a Controller. opts can be nil to use defaults.
func New(opts *Opts) *Controller {
	c := &Controller{maxRefire: 64, log: slog.New(slog.DiscardHandler)}
	if opts != nil {
		if opts.MaxRefire > 0 {
			c.maxRefire = opts.MaxRefire
		}
		if opts.Logger != nil {
			c.log = opts.Logger
		}
	}
	return c
}

// Register routes the source called name to handler at the given priority.
// The line starts disabled.
func (c *Controller) Register(name string, prio Priority, handler func()) (*Line, error) {
	if handler == nil {
		return nil, fmt.Errorf("irq: %s: nil handler", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snapshot()
	for _, l := range old {
		if l.name == name {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
		}
	}

	l := &Line{name: name, prio: prio, handler: handler, c: c}
	lines := make([]*Line, len(old), len(old)+1)
	copy(lines, old)
	lines = append(lines, l)
	c.lines.Store(&lines)
	return l, nil
}

// Unregister disables l and removes it from the controller, so its source
// name can be registered again.
func (c *Controller) Unregister(l *Line) {
	l.enabled.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snapshot()
	lines := make([]*Line, 0, len(old))
	for _, x := range old {
		if x != l {
			lines = append(lines, x)
		}
	}
	c.lines.Store(&lines)
}

// snapshot returns the current line table. Dispatch reads it without locking,
// so it is safe from interrupt context.
func (c *Controller) snapshot() []*Line {
	if p := c.lines.Load(); p != nil {
		return *p
	}
	return nil
}

// Enable arms l. Edges already latched on it are serviced right away.
func (c *Controller) Enable(l *Line) {
	l.enabled.Store(true)
	c.Dispatch()
}

// Raise latches one edge on l and dispatches. Edges on a disabled line are
// discarded.
func (c *Controller) Raise(l *Line) {
	if !l.enabled.Load() {
		return
	}
	l.raised.Add(1)
	c.Dispatch()
}

// Dispatch services pending lines until none is left. A call made while
// another dispatch is running returns immediately; the running one picks up
// whatever was latched in the meantime.
func (c *Controller) Dispatch() {
	for {
		if !c.active.CompareAndSwap(false, true) {
			return
		}
		c.drain()

		// An edge may have landed between the last check and the release.
		if c.next() == nil {
			return
		}
	}
}

func (c *Controller) drain() {
	defer c.active.Store(false)
	for l := c.next(); l != nil; l = c.next() {
		c.service(l)
	}
}

// Err returns the first storm recorded by the controller, if any.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// next returns the enabled pending line with the highest priority.
func (c *Controller) next() *Line {
	var best *Line
	for _, l := range c.snapshot() {
		if !l.enabled.Load() || l.Pending() == 0 {
			continue
		}
		if best == nil || l.prio > best.prio {
			best = l
		}
	}
	return best
}

func (c *Controller) service(l *Line) {
	l.inService.Store(true)
	l.fired.Add(1)
	func() {
		defer func() {
			if l.inService.Swap(false) {
				l.refires++
			} else {
				l.refires = 0
			}
		}()
		l.handler()
	}()

	if l.refires >= c.maxRefire {
		l.enabled.Store(false)
		err := fmt.Errorf("%w: %s refired %d times without ack", ErrInterruptStorm, l.name, l.refires)
		c.log.Error("irq: line disabled", "line", l.name, "err", err)
		c.errMu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.errMu.Unlock()
	}
}

// Line is one routed interrupt source.
type Line struct {
	name    string
	prio    Priority
	handler func()
	c       *Controller

	enabled   atomic.Bool
	inService atomic.Bool
	raised    atomic.Uint32
	acked     atomic.Uint32
	fired     atomic.Uint32
	refires   int // only touched by the dispatcher
}

// Name returns the source name.
func (l *Line) Name() string { return l.name }

// Priority returns the line's priority.
func (l *Line) Priority() Priority { return l.prio }

// Enabled reports whether the line is armed.
func (l *Line) Enabled() bool { return l.enabled.Load() }

// Pending returns how many latched edges have not been acknowledged.
func (l *Line) Pending() uint32 { return l.raised.Load() - l.acked.Load() }

// Fired returns how many times the handler has been entered.
func (l *Line) Fired() uint32 { return l.fired.Load() }

// Ack clears the edge being serviced. It must be called exactly once per
// firing, from the handler, before it returns; a handler that skips it is
// re-entered as soon as it returns.
func (l *Line) Ack() {
	if !l.inService.Swap(false) {
		l.c.log.Warn("irq: ack outside of a firing ignored", "line", l.name)
		return
	}
	l.acked.Add(1)
}

func (l *Line) String() string {
	return fmt.Sprintf("irq.Line{%s prio=%d}", l.name, l.prio)
}
