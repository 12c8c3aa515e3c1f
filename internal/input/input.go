// Package input reads the seven pull-up button pins.
package input

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// DefaultPins is the M5Atom wiring: up, down, left, right, A, B, C.
var DefaultPins = []string{"GPIO33", "GPIO22", "GPIO19", "GPIO23", "GPIO21", "GPIO25", "GPIO39"}

// Poller reports which slots are pressed. Slot i is pins[i].
type Poller struct {
	pins []gpio.PinIn
}

// New wraps pins that are already configured as inputs.
func New(pins ...gpio.PinIn) *Poller {
	return &Poller{pins: pins}
}

// Open looks up each named pin and configures it as a pull-up input.
// host.Init must have been called first.
func Open(names []string) (*Poller, error) {
	pins := make([]gpio.PinIn, 0, len(names))
	for i, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("slot %d: pin %q not found", i, name)
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("slot %d: pin %s: %w", i, p, err)
		}
		pins = append(pins, p)
	}
	return New(pins...), nil
}

// Poll reads every pin once, in slot order, and returns the indices of
// the ones held low. The raw level is used; there is no debouncing.
func (p *Poller) Poll() []int {
	var active []int
	for i, pin := range p.pins {
		if pin.Read() == gpio.Low {
			active = append(active, i)
		}
	}
	return active
}

// Len is the number of slots.
func (p *Poller) Len() int {
	return len(p.pins)
}

// Halt releases every pin, even when some of them fail.
func (p *Poller) Halt() error {
	var errs []error
	for _, pin := range p.pins {
		if err := pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", pin.Name(), err))
		}
	}
	return errors.Join(errs...)
}
