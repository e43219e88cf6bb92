package latch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// PinSource reports edges of a periph.io input pin. A goroutine waits on
// WaitForEdge and calls notify for each edge, playing the part of the GPIO
// interrupt on Linux hosts.
type PinSource struct {
	pin  gpio.PinIn
	poll time.Duration

	started atomic.Bool
	once    sync.Once
	stop    chan struct{}
	done    chan struct{}
}

// NewPinSource wraps p.
func NewPinSource(p gpio.PinIn) *PinSource {
	return &PinSource{
		pin:  p,
		poll: 100 * time.Millisecond,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Name returns the pin name.
func (s *PinSource) Name() string {
	if s.pin == nil {
		return gpio.INVALID.Name()
	}
	return s.pin.Name()
}

// Listen sets up edge detection on the pin and starts the edge goroutine.
func (s *PinSource) Listen(pull gpio.Pull, edge gpio.Edge, notify func()) error {
	if s.pin == nil || s.pin == gpio.INVALID {
		return errors.New("invalid pin")
	}
	if err := s.pin.In(pull, edge); err != nil {
		return err
	}
	s.started.Store(true)
	go s.wait(notify)
	return nil
}

// Close stops the edge goroutine and waits for it to exit.
func (s *PinSource) Close() error {
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
	return nil
}

func (s *PinSource) wait(notify func()) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if s.pin.WaitForEdge(s.poll) {
			notify()
		}
	}
}

// SoftPin is a button driven from software, used by the simulator and tests.
type SoftPin struct {
	name string

	mu     sync.Mutex
	notify func()
	pull   gpio.Pull
	edge   gpio.Edge
	fail   error
}

// NewSoftPin returns a SoftPin called name.
func NewSoftPin(name string) *SoftPin {
	return &SoftPin{name: name}
}

// Name returns the pin name.
func (p *SoftPin) Name() string { return p.name }

// FailListen makes the next Listen return err.
func (p *SoftPin) FailListen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Listen records the configuration and keeps notify for Press.
func (p *SoftPin) Listen(pull gpio.Pull, edge gpio.Edge, notify func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		err := p.fail
		p.fail = nil
		return err
	}
	p.pull = pull
	p.edge = edge
	p.notify = notify
	return nil
}

// Config returns the pull and edge passed to Listen.
func (p *SoftPin) Config() (gpio.Pull, gpio.Edge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull, p.edge
}

// Press delivers one edge. It is a no-op until Listen has been called.
func (p *SoftPin) Press() {
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}
