package presscount

import (
	"context"
	"time"
)

// Timer wakes the foreground loop periodically.
type Timer interface {
	// Start begins firing every d.
	Start(d time.Duration)
	// Wait blocks until the next tick or until ctx is done.
	Wait(ctx context.Context) error
}

// Ticker is a Timer backed by time.Ticker.
type Ticker struct {
	t *time.Ticker
}

// NewTicker returns a stopped Ticker.
func NewTicker() *Ticker {
	return &Ticker{}
}

// Start implements Timer. Calling it again resets the period.
func (t *Ticker) Start(d time.Duration) {
	if t.t == nil {
		t.t = time.NewTicker(d)
		return
	}
	t.t.Reset(d)
}

// Wait implements Timer.
func (t *Ticker) Wait(ctx context.Context) error {
	if t.t == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-t.t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the underlying ticker.
func (t *Ticker) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}

// Run is the foreground idle loop. All work happens in the button handler;
// Run only wakes on timer ticks to log what the handler did, until ctx is
// cancelled, and returns ctx.Err().
func (d *Device) Run(ctx context.Context, timer Timer) error {
	timer.Start(d.opts.Tick)
	for {
		if err := timer.Wait(ctx); err != nil {
			return err
		}
		d.report()
	}
}
