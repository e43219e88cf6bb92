// Package counter holds the press count and its decimal rendering.
package counter

import (
	"math"
	"strconv"
)

// MaxDigits is the length of math.MaxUint32 in decimal.
const MaxDigits = 10

// Counter counts accepted presses. The zero value is a count of zero, which is
// also the state after every reset; nothing is persisted.
//
// A Counter has a single writer, the button handler.
type Counter struct {
	n uint32
}

// Increment adds one press. At math.MaxUint32 the count sticks and Increment
// reports true.
func (c *Counter) Increment() (saturated bool) {
	if c.n == math.MaxUint32 {
		return true
	}
	c.n++
	return false
}

// Value returns the current count.
func (c *Counter) Value() uint32 {
	return c.n
}

// Digits is scratch space for Format.
type Digits [MaxDigits]byte

// Format writes v in decimal into buf and returns the used part of it. It
// never allocates.
func Format(buf *Digits, v uint32) []byte {
	return strconv.AppendUint(buf[:0], uint64(v), 10)
}
