//go:build !tinygo

package cell

import "sync"

// On the host there is no interrupt mask: edge handlers run on their own
// goroutines. A single process-wide mutex gives the same mutual exclusion
// between the foreground and the handler.
var section sync.Mutex

type state struct{}

func disable() state {
	section.Lock()
	return state{}
}

func restore(state) {
	section.Unlock()
}
