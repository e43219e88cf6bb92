//go:build tinygo

package cell

import "runtime/interrupt"

type state = interrupt.State

// disable masks interrupts and returns the previous state.
func disable() state {
	return interrupt.Disable()
}

// restore puts back the interrupt state returned by disable.
func restore(s state) {
	interrupt.Restore(s)
}
