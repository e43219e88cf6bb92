package latch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flavioheleno/presscount/irq"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Unconfigured, "Unconfigured"},
		{Configured, "Configured"},
		{Enabled, "Enabled"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", uint32(tt.s), got, tt.want)
		}
	}
}

func TestConfigureDefaults(t *testing.T) {
	pin := NewSoftPin("GPIO15")
	var l Latch
	if err := l.Configure(irq.New(nil), pin, nil, func() {}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if l.State() != Configured {
		t.Errorf("State() = %s, want Configured", l.State())
	}
	pull, edge := pin.Config()
	if pull != gpio.PullUp || edge != gpio.FallingEdge {
		t.Errorf("pin config = %s/%s, want PullUp/FallingEdge", pull, edge)
	}
	if l.Line() == nil || l.Line().Name() != "GPIO15" {
		t.Errorf("Line() = %v, want line GPIO15", l.Line())
	}
}

func TestConfigureErrors(t *testing.T) {
	ctrl := irq.New(nil)
	var bound Latch
	if err := bound.Configure(ctrl, NewSoftPin("GPIO15"), nil, func() {}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	failing := NewSoftPin("GPIO4")
	failing.FailListen(errors.New("no edge support"))

	tests := []struct {
		name string
		src  EdgeSource
		want error
	}{
		{"nil pin", nil, ErrPinUnavailable},
		{"pin already bound", NewSoftPin("GPIO15"), ErrAlreadyBound},
		{"listen fails", failing, ErrPinUnavailable},
		{"gpiotest pin without edges", &PinSource{pin: &gpiotest.Pin{N: "GPIO9"}}, ErrPinUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Latch
			err := l.Configure(ctrl, tt.src, nil, func() {})
			if !errors.Is(err, tt.want) {
				t.Errorf("Configure() error = %v, want %v", err, tt.want)
			}
			if l.State() != Unconfigured {
				t.Errorf("State() = %s after failure, want Unconfigured", l.State())
			}
		})
	}
}

func TestConfigureRetryAfterListenFails(t *testing.T) {
	ctrl := irq.New(nil)
	pin := NewSoftPin("GPIO4")
	pin.FailListen(errors.New("transient"))

	var first Latch
	if err := first.Configure(ctrl, pin, nil, func() {}); !errors.Is(err, ErrPinUnavailable) {
		t.Fatalf("Configure() error = %v, want %v", err, ErrPinUnavailable)
	}
	if first.Line() != nil {
		t.Error("Line() kept after a failed Configure")
	}

	calls := 0
	var l Latch
	if err := l.Configure(ctrl, pin, nil, func() { calls++ }); err != nil {
		t.Fatalf("Configure() retry error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	pin.Press()
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestTransitions(t *testing.T) {
	var l Latch
	if err := l.Enable(); !errors.Is(err, ErrState) {
		t.Errorf("Enable() before Configure error = %v, want %v", err, ErrState)
	}

	ctrl := irq.New(nil)
	if err := l.Configure(ctrl, NewSoftPin("GPIO15"), nil, func() {}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Configure(ctrl, NewSoftPin("GPIO16"), nil, func() {}); !errors.Is(err, ErrState) {
		t.Errorf("second Configure() error = %v, want %v", err, ErrState)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if l.State() != Enabled {
		t.Errorf("State() = %s, want Enabled", l.State())
	}
	if err := l.Enable(); !errors.Is(err, ErrState) {
		t.Errorf("second Enable() error = %v, want %v", err, ErrState)
	}
}

func TestEdgeBeforeEnableDropped(t *testing.T) {
	pin := NewSoftPin("GPIO15")
	calls := 0
	var l Latch
	if err := l.Configure(irq.New(nil), pin, nil, func() { calls++ }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	pin.Press()
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
	if l.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", l.Dropped())
	}

	pin.Press()
	if calls != 1 {
		t.Errorf("handler calls = %d after enabled press, want 1", calls)
	}
}

func TestAutoAcknowledge(t *testing.T) {
	pin := NewSoftPin("GPIO15")
	calls := 0
	var l Latch
	if err := l.Configure(irq.New(nil), pin, nil, func() { calls++ }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		pin.Press()
	}
	if calls != 10 {
		t.Errorf("handler calls = %d, want 10", calls)
	}
	if p := l.Line().Pending(); p != 0 {
		t.Errorf("Pending() = %d, want 0", p)
	}
}

func TestAutoAcknowledgeOnPanic(t *testing.T) {
	pin := NewSoftPin("GPIO15")
	var l Latch
	err := l.Configure(irq.New(nil), pin, nil, func() {
		panic("display NACK")
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("handler panic was swallowed")
			}
		}()
		pin.Press()
	}()

	if p := l.Line().Pending(); p != 0 {
		t.Errorf("Pending() = %d after panicking handler, want 0", p)
	}
}

// Forgot to clear: with ManualAck and a handler that never acknowledges, a
// single press turns into back-to-back firings.
func TestManualAckForgotten(t *testing.T) {
	ctrl := irq.New(&irq.Opts{MaxRefire: 16})
	pin := NewSoftPin("GPIO15")
	calls := 0
	var l Latch
	if err := l.Configure(ctrl, pin, &Opts{ManualAck: true}, func() { calls++ }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	pin.Press()

	if calls != 16 {
		t.Errorf("handler calls = %d for one press, want 16", calls)
	}
	if err := ctrl.Err(); !errors.Is(err, irq.ErrInterruptStorm) {
		t.Errorf("controller Err() = %v, want %v", err, irq.ErrInterruptStorm)
	}
}

func TestManualAck(t *testing.T) {
	pin := NewSoftPin("GPIO15")
	calls := 0
	var l Latch
	err := l.Configure(irq.New(nil), pin, &Opts{ManualAck: true}, func() {
		calls++
		l.Acknowledge()
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	pin.Press()
	pin.Press()
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestDebounce(t *testing.T) {
	now := time.Unix(0, 0)
	pin := NewSoftPin("GPIO15")
	calls := 0
	var l Latch
	opts := &Opts{
		Debounce: 20 * time.Millisecond,
		Now:      func() time.Time { return now },
	}
	if err := l.Configure(irq.New(nil), pin, opts, func() { calls++ }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	steps := []struct {
		advance time.Duration
		want    int
	}{
		{0, 1},
		{5 * time.Millisecond, 1},  // bounce
		{10 * time.Millisecond, 1}, // bounce, 15ms after the accepted edge
		{10 * time.Millisecond, 2}, // 25ms after the accepted edge
		{20 * time.Millisecond, 3},
	}
	for i, s := range steps {
		now = now.Add(s.advance)
		pin.Press()
		if calls != s.want {
			t.Errorf("step %d: handler calls = %d, want %d", i, calls, s.want)
		}
	}
	if l.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", l.Dropped())
	}
}

func TestEnableAccountsForEveryEdge(t *testing.T) {
	const presses = 100
	for i := 0; i < 20; i++ {
		pin := NewSoftPin("GPIO15")
		var calls atomic.Uint32
		var l Latch
		if err := l.Configure(irq.New(nil), pin, nil, func() { calls.Add(1) }); err != nil {
			t.Fatalf("Configure() error = %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < presses; j++ {
				pin.Press()
			}
		}()
		if err := l.Enable(); err != nil {
			t.Fatalf("Enable() error = %v", err)
		}
		<-done

		// Each edge is either handled or counted as dropped, never lost.
		if got := calls.Load() + l.Dropped(); got != presses {
			t.Fatalf("run %d: handled %d + dropped %d, want %d", i, calls.Load(), l.Dropped(), presses)
		}
	}
}

func TestDebounceConcurrentNotifiers(t *testing.T) {
	now := time.Unix(100, 0)
	pin := NewSoftPin("GPIO15")
	var calls atomic.Uint32
	var l Latch
	opts := &Opts{
		Debounce: time.Second,
		Now:      func() time.Time { return now },
	}
	if err := l.Configure(irq.New(nil), pin, opts, func() { calls.Add(1) }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	const workers, presses = 4, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < presses; j++ {
				pin.Press()
			}
		}()
	}
	wg.Wait()

	// The clock never moves, so only the first edge is outside the window.
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	if got := l.Dropped(); got != workers*presses-1 {
		t.Errorf("Dropped() = %d, want %d", got, workers*presses-1)
	}
}

func TestPinSourceEdges(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO15", Num: 15, EdgesChan: make(chan gpio.Level)}
	src := NewPinSource(p)
	defer src.Close()

	fired := make(chan struct{}, 4)
	var l Latch
	if err := l.Configure(irq.New(nil), src, nil, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := l.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		p.EdgesChan <- gpio.Low
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("edge %d not delivered", i)
		}
	}
	if got := l.Line().Fired(); got != 3 {
		t.Errorf("Fired() = %d, want 3", got)
	}
}

func TestPinSourceCloseBeforeListen(t *testing.T) {
	src := NewPinSource(&gpiotest.Pin{N: "GPIO15"})
	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
