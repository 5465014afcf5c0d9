package hih61xx

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// TinyGoBus adapts a TinyGo I²C bus such as *machine.I2C. configure, when
// not nil, is called by Driver.Initialise unless Config.BusConfigured is set.
func TinyGoBus(b drivers.I2C, configure func() error) Bus {
	return &tinygoBus{b: b, configure: configure}
}

type tinygoBus struct {
	b         drivers.I2C
	configure func() error
}

func (t *tinygoBus) Probe(addr uint16) error {
	return t.b.Tx(addr, nil, nil)
}

func (t *tinygoBus) Read(addr uint16, r []byte) error {
	return t.b.Tx(addr, nil, r)
}

func (t *tinygoBus) ConfigureBus() error {
	if t.configure == nil {
		return nil
	}
	return t.configure()
}

// Update runs a blocking measurement cycle when temperature or humidity is
// requested. It implements drivers.Sensor.
func (d *Driver) Update(which drivers.Measurement) error {
	if which&(drivers.Temperature|drivers.Humidity) == 0 {
		return nil
	}
	if d.Read() {
		return nil
	}
	if err := d.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrStatus, d.Status())
}

var _ BusConfigurer = &tinygoBus{}
var _ drivers.Sensor = &Driver{}
