package hih61xx

// Bus is the two-wire transport the driver talks through. It is borrowed: the
// driver never opens or closes it. Several drivers may share one Bus as long
// as their addresses differ and calls are serialised by the host.
type Bus interface {
	// Probe issues a zero-length write transaction to addr and returns an
	// error if the device does not acknowledge.
	Probe(addr uint16) error
	// Read reads exactly len(p) bytes from addr. A short read is an error.
	Read(addr uint16, p []byte) error
}

// BusConfigurer is implemented by buses that need pin or clock setup before
// first use. Driver.Initialise calls ConfigureBus unless Config.BusConfigured
// is set.
type BusConfigurer interface {
	ConfigureBus() error
}

// PowerPin switches the sensor supply.
type PowerPin interface {
	ConfigureOutput()
	Set(active bool)
}

// PinFunc adapts a plain setter such as machine.Pin.Set to PowerPin. The pin
// must already be configured as an output.
type PinFunc func(active bool)

func (f PinFunc) ConfigureOutput() {}

func (f PinFunc) Set(active bool) { f(active) }

var _ PowerPin = PinFunc(nil)
