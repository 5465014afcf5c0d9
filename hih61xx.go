// Package hih61xx is a non-blocking driver for Honeywell HIH61xx
// humidity/temperature sensors.
//
// A measurement cycle powers the sensor, waits for it to settle, probes it
// (which starts a conversion), waits for the conversion and reads four result
// bytes. The cycle takes about 120ms. Driver never sleeps: call Start, then
// call Process from the host loop until IsFinished reports true.
//
//	d := hih61xx.NewDriver(hih61xx.PeriphBus(b), hih61xx.Config{})
//	d.Initialise()
//	d.Start()
//	for !d.IsFinished() {
//		d.Process()
//		// other work
//	}
//	fmt.Println(d.AmbientTemp(), d.RelHumidity(), d.Status())
//
// Read does the same in a loop for callers with nothing else to do.
package hih61xx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrNoAck is wrapped by Err after the sensor failed to acknowledge the probe.
	ErrNoAck = errors.New("hih61xx: no acknowledge")
	// ErrRead is wrapped by Err after the result read failed.
	ErrRead = errors.New("hih61xx: read failed")
	// ErrStatus is returned when a cycle completed with a non-normal status.
	ErrStatus = errors.New("hih61xx: reading not valid")
)

// Config is applied by NewDriver and not changed afterwards. All fields are
// optional.
type Config struct {
	// Address defaults to DefaultAddress if zero.
	Address uint16
	// PowerPin switches the sensor supply. When nil the sensor is always
	// powered.
	PowerPin PowerPin
	// BusConfigured tells Initialise the bus is already set up. Otherwise a
	// bus implementing BusConfigurer is configured by Initialise.
	BusConfigured bool
	// PowerUpDelay and ConversionDelay default to the data sheet values.
	PowerUpDelay    time.Duration
	ConversionDelay time.Duration
	// Timer defaults to NewTimer().
	Timer Timer
	// Logger defaults to discarding.
	Logger *slog.Logger
}

// ErrorHandler is called synchronously from Process, once per failure.
type ErrorHandler func(d *Driver)

// Driver runs the HIH61xx acquisition cycle. It is not safe for concurrent
// use; all calls must come from the same loop.
type Driver struct {
	bus             Bus
	addr            uint16
	pin             PowerPin
	busConfigured   bool
	powerUpDelay    time.Duration
	conversionDelay time.Duration
	timer           Timer
	log             *slog.Logger

	phase   Phase
	reading Reading
	err     error

	onPowerUpError ErrorHandler
	onReadError    ErrorHandler

	buf [resultLen]byte
}

// NewDriver returns a driver for the sensor on bus. It does not touch the
// hardware; call Initialise before the first Start.
func NewDriver(bus Bus, cfg Config) *Driver {
	d := &Driver{
		bus:             bus,
		addr:            cfg.Address,
		pin:             cfg.PowerPin,
		busConfigured:   cfg.BusConfigured,
		powerUpDelay:    cfg.PowerUpDelay,
		conversionDelay: cfg.ConversionDelay,
		timer:           cfg.Timer,
		log:             cfg.Logger,
		phase:           PhaseOff,
		reading:         initialReading,
	}
	if d.addr == 0 {
		d.addr = DefaultAddress
	}
	if d.powerUpDelay <= 0 {
		d.powerUpDelay = PowerUpDelay
	}
	if d.conversionDelay <= 0 {
		d.conversionDelay = ConversionDelay
	}
	if d.timer == nil {
		d.timer = NewTimer()
	}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d.log = d.log.With("addr", fmt.Sprintf("0x%02x", d.addr))
	return d
}

// Initialise configures the bus if needed, switches the sensor off and arms
// the power-up delay so that it is observed before the first probe even when
// the sensor is always powered.
func (d *Driver) Initialise() error {
	if c, ok := d.bus.(BusConfigurer); ok && !d.busConfigured {
		if err := c.ConfigureBus(); err != nil {
			return fmt.Errorf("hih61xx: configure bus: %w", err)
		}
	}
	if d.pin != nil {
		d.pin.ConfigureOutput()
		d.pin.Set(false)
	}
	d.timer.Arm(d.powerUpDelay)
	return nil
}

// Start begins a measurement cycle, restarting any cycle in progress.
func (d *Driver) Start() {
	if d.pin != nil {
		d.pin.Set(true)
		d.timer.Arm(d.powerUpDelay)
	}
	d.setPhase(PhasePoweringUp)
}

// Process advances the cycle by at most one step. It only blocks inside bus
// transactions and does nothing when the driver is off or finished.
func (d *Driver) Process() {
	switch d.phase {
	case PhaseOff, PhaseFinished:

	case PhasePoweringUp:
		if !d.timer.Expired() {
			return
		}
		if err := d.bus.Probe(d.addr); err != nil {
			d.fail(fmt.Errorf("%w: %w", ErrNoAck, err), d.onPowerUpError)
			return
		}
		d.timer.Arm(d.conversionDelay)
		d.setPhase(PhaseConverting)

	case PhaseConverting:
		if d.timer.Expired() {
			d.setPhase(PhaseReadingResult)
		}

	case PhaseReadingResult:
		if err := d.bus.Read(d.addr, d.buf[:]); err != nil {
			d.fail(fmt.Errorf("%w: %w", ErrRead, err), d.onReadError)
			return
		}
		d.reading = Decode(d.buf)
		d.err = nil
		d.log.Debug("reading", "temp", d.reading.AmbientTemp, "rh", d.reading.RelHumidity, "status", d.reading.Status)
		d.setPhase(PhasePoweringDown)

	case PhasePoweringDown:
		d.Finish()
	}
}

// Finish ends the cycle immediately and powers the sensor down. It is safe to
// call in any phase.
func (d *Driver) Finish() {
	if d.pin != nil {
		d.pin.Set(false)
	}
	d.setPhase(PhaseFinished)
}

// Read runs a full cycle, spinning on Process, and reports whether it
// produced a normal reading. It monopolises the caller for the whole cycle.
func (d *Driver) Read() bool {
	d.Start()
	for !d.IsFinished() {
		d.Process()
	}
	return d.reading.Status == StatusNormal
}

// ReadContext is like Read but sleeps for poll between steps. If ctx is done
// first the cycle is aborted with Finish and ctx.Err() is returned.
func (d *Driver) ReadContext(ctx context.Context, poll time.Duration) (bool, error) {
	if poll <= 0 {
		poll = time.Millisecond
	}
	t := time.NewTicker(poll)
	defer t.Stop()

	d.Start()
	for {
		d.Process()
		if d.IsFinished() {
			return d.reading.Status == StatusNormal, nil
		}
		select {
		case <-ctx.Done():
			d.Finish()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

func (d *Driver) fail(err error, h ErrorHandler) {
	d.Finish()
	d.reading = timeoutReading
	d.err = err
	d.log.Warn("measurement failed", "error", err)
	if h != nil {
		h(d)
	}
}

func (d *Driver) setPhase(p Phase) {
	if p != d.phase {
		d.log.Debug("phase", "from", d.phase, "to", p)
	}
	d.phase = p
}

// SetPowerUpErrorHandler sets the handler called when the sensor does not
// acknowledge the probe. nil removes it.
func (d *Driver) SetPowerUpErrorHandler(h ErrorHandler) {
	d.onPowerUpError = h
}

// SetReadErrorHandler sets the handler called when reading the result fails.
// nil removes it.
func (d *Driver) SetReadErrorHandler(h ErrorHandler) {
	d.onReadError = h
}

// AmbientTemp returns the last temperature in hundredths of a degree Celsius,
// or SentinelAmbientTemp.
func (d *Driver) AmbientTemp() int16 { return d.reading.AmbientTemp }

// RelHumidity returns the last relative humidity in hundredths of a percent,
// or SentinelRelHumidity.
func (d *Driver) RelHumidity() uint16 { return d.reading.RelHumidity }

func (d *Driver) Status() Status { return d.reading.Status }

// Reading returns the last published reading.
func (d *Driver) Reading() Reading { return d.reading }

// Err returns the bus error behind a StatusTimeout reading, or nil.
func (d *Driver) Err() error { return d.err }

func (d *Driver) Phase() Phase { return d.phase }

func (d *Driver) Address() uint16 { return d.addr }

func (d *Driver) IsFinished() bool { return d.phase == PhaseFinished }

// IsSampling reports whether a cycle has started and results are not ready.
func (d *Driver) IsSampling() bool { return !d.IsPowerOff() }

func (d *Driver) IsPowerOff() bool {
	return d.phase == PhaseOff || d.phase == PhaseFinished
}

func (d *Driver) String() string {
	return fmt.Sprintf("hih61xx{0x%02x}", d.addr)
}
