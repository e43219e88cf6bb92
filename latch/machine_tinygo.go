//go:build tinygo

package latch

import (
	"machine"
	"strconv"

	"periph.io/x/conn/v3/gpio"
)

// MachinePin reports edges of a TinyGo machine.Pin through its hardware
// interrupt. notify runs in interrupt context.
type MachinePin struct {
	Pin machine.Pin
}

// Name returns "GPIO" followed by the pin number.
func (p MachinePin) Name() string {
	return "GPIO" + strconv.Itoa(int(p.Pin))
}

// Listen configures the pin as an input and installs the pin interrupt.
func (p MachinePin) Listen(pull gpio.Pull, edge gpio.Edge, notify func()) error {
	mode := machine.PinInput
	switch pull {
	case gpio.PullUp:
		mode = machine.PinInputPullup
	case gpio.PullDown:
		mode = machine.PinInputPulldown
	}
	p.Pin.Configure(machine.PinConfig{Mode: mode})

	change := machine.PinFalling
	switch edge {
	case gpio.RisingEdge:
		change = machine.PinRising
	case gpio.BothEdges:
		change = machine.PinToggle
	}
	return p.Pin.SetInterrupt(change, func(machine.Pin) { notify() })
}
