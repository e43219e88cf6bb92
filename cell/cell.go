// Package cell shares state between foreground code and a single interrupt
// handler without a heap lock.
//
// A Cell starts empty, is filled once during setup with Install and is then
// borrowed for the rest of the program's life. Every access happens inside a
// critical section entered with With, which masks interrupts on TinyGo
// targets. The CS token passed to the callback is the only way to reach the
// contents of a Cell.
//
//	var button cell.Cell[*latch.Latch]
//
//	cell.With(func(cs cell.CS) {
//		button.Install(cs, l)
//	})
//
//	button.WithMut(func(l **latch.Latch) {
//		(*l).Acknowledge()
//	})
package cell

import "errors"

// ErrNotInitialized is the panic value raised when a Cell is borrowed before
// Install. It always indicates a setup ordering bug.
var ErrNotInitialized = errors.New("cell: not initialized")

// errOutsideSection is the panic value raised when a forged CS is used.
var errOutsideSection = errors.New("cell: borrow outside critical section")

// CS proves that the holder runs inside a critical section. The zero value is
// not valid; only With hands out usable tokens.
type CS struct {
	active bool
}

// With runs f with interrupts masked. The previous interrupt state is restored
// on every exit path, including a panic in f.
//
// f must stay short and must never wait on an event another interrupt would
// deliver. Critical sections must not be nested; pass cs down instead.
func With(f func(cs CS)) {
	s := disable()
	defer restore(s)
	f(CS{active: true})
}

// Cell holds at most one value of type T. The zero value is an empty cell.
type Cell[T any] struct {
	v   T
	set bool
}

// Install moves v into the cell.
//
// It must run before any interrupt that borrows the cell is enabled. A second
// Install replaces the previous value.
func (c *Cell[T]) Install(cs CS, v T) {
	mustHold(cs)
	c.v = v
	c.set = true
}

// Installed reports whether Install has been called.
func (c *Cell[T]) Installed(cs CS) bool {
	mustHold(cs)
	return c.set
}

// Borrow returns exclusive access to the value for the duration of the
// critical section cs. The pointer must not be retained after it ends.
//
// It panics with ErrNotInitialized when the cell is still empty.
func (c *Cell[T]) Borrow(cs CS) *T {
	mustHold(cs)
	if !c.set {
		panic(ErrNotInitialized)
	}
	return &c.v
}

// WithMut enters a critical section and calls f with the contained value.
func (c *Cell[T]) WithMut(f func(v *T)) {
	With(func(cs CS) {
		f(c.Borrow(cs))
	})
}

func mustHold(cs CS) {
	if !cs.active {
		panic(errOutsideSection)
	}
}
