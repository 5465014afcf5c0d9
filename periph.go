package hih61xx

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// PeriphBus adapts a periph.io I²C bus. The bus is already configured when
// returned by i2creg.Open.
func PeriphBus(b i2c.Bus) Bus {
	return &periphBus{b: b}
}

type periphBus struct {
	b i2c.Bus
}

func (p *periphBus) Probe(addr uint16) error {
	if err := p.b.Tx(addr, nil, nil); err != nil {
		return fmt.Errorf("probe 0x%02x: %w", addr, err)
	}
	return nil
}

func (p *periphBus) Read(addr uint16, r []byte) error {
	if err := p.b.Tx(addr, nil, r); err != nil {
		return fmt.Errorf("read 0x%02x: %w", addr, err)
	}
	return nil
}

func (p *periphBus) String() string {
	return p.b.String()
}

// PeriphPin adapts a periph.io output pin. gpio errors cannot be reported
// through PowerPin and are passed to onErr when it is not nil.
func PeriphPin(p gpio.PinOut, onErr func(error)) PowerPin {
	return &periphPin{p: p, onErr: onErr}
}

type periphPin struct {
	p     gpio.PinOut
	onErr func(error)
}

func (p *periphPin) ConfigureOutput() {
	// Out switches the pin to output mode.
	p.out(gpio.Low)
}

func (p *periphPin) Set(active bool) {
	p.out(gpio.Level(active))
}

func (p *periphPin) out(l gpio.Level) {
	if err := p.p.Out(l); err != nil && p.onErr != nil {
		p.onErr(fmt.Errorf("power pin %s: %w", p.p, err))
	}
}
