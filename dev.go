package hih61xx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

type Opts struct {
	// I2cAddress is the I2C address of the sensor
	I2cAddress uint16
	Name       string
	// PowerPin, if set, is switched on for each measurement.
	PowerPin gpio.PinOut
	// PollInterval is the delay between state machine steps in Sense.
	PollInterval time.Duration
	Logger       *slog.Logger
}

func DefaultOpts() *Opts {
	return &Opts{
		I2cAddress:   DefaultAddress,
		Name:         "hih61xx",
		PollInterval: 5 * time.Millisecond,
	}
}

// New opens a handle to an HIH61xx sensor at a specified I2C address.
//
// The first Sense waits for the power-up delay after New returns.
func New(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOpts()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	d := &Dev{
		Name: opts.Name,
		poll: opts.PollInterval,
		log:  log,
	}
	if d.Name == "" {
		d.Name = "hih61xx"
	}
	if d.poll <= 0 {
		d.poll = 5 * time.Millisecond
	}
	cfg := Config{
		Address:       opts.I2cAddress,
		BusConfigured: true,
		Logger:        log,
	}
	if opts.PowerPin != nil {
		cfg.PowerPin = PeriphPin(opts.PowerPin, func(err error) {
			log.Error("power pin", "error", err)
		})
	}
	d.drv = NewDriver(PeriphBus(b), cfg)
	if err := d.drv.Initialise(); err != nil {
		return nil, d.wrap(err)
	}
	return d, nil
}

// Dev is a periph.io handle to an HIH61xx over the non-blocking Driver.
type Dev struct {
	Name string

	drv  *Driver
	poll time.Duration
	log  *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}

	return d.sense(context.Background(), e)
}

// SenseContinuous returns measurements on a continuous basis.
//
// The application must call Halt() to stop the sensing when done to stop the
// sensor and close the channel.
//
// It's the responsibility of the caller to retrieve the values from the
// channel as fast as possible, otherwise the interval may not be respected.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.haltContinuous()

	d.mu.Lock()
	defer d.mu.Unlock()
	sensing := make(chan physic.Env)
	stop := make(chan struct{})
	d.stop = stop
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, stop)
	}()
	return sensing, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{0x%02x}", d.Name, d.drv.Address())
}

// 14-bit ADC for both temperature and humidity.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin * tempScale / 100 / fullScale
	e.Humidity = physic.PercentRH * humidityScale / 100 / fullScale
}

// Halt stops continuous sensing and powers the sensor down.
func (d *Dev) Halt() error {
	d.haltContinuous()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.drv.Finish()
	return nil
}

// haltContinuous must be called without d.mu held, the sensing goroutine
// takes it for each cycle.
func (d *Dev) haltContinuous() {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
}

// Reading returns the last published reading.
func (d *Dev) Reading() Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drv.Reading()
}

func (d *Dev) sense(ctx context.Context, e *physic.Env) error {
	ok, err := d.drv.ReadContext(ctx, d.poll)
	if err != nil {
		return d.wrap(err)
	}
	if !ok {
		if err := d.drv.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrStatus, d.drv.Status())
	}
	toEnv(d.drv.Reading(), e)
	return nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	// A cycle cannot be shorter than the two fixed delays.
	if cycle := PowerUpDelay + ConversionDelay; interval < cycle {
		interval = cycle
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		// Do one initial sensing right away.
		e := physic.Env{}
		d.mu.Lock()
		err := d.sense(ctx, &e)
		d.mu.Unlock()
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			d.log.Warn("sensingContinuous", "device", d.Name, "error", err)
		default:
			select {
			case sensing <- e:
			case <-stop:
				return
			}
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

func (d *Dev) wrap(err error) error {
	return fmt.Errorf("%s: %w", strings.ToLower(d.Name), err)
}

func toEnv(r Reading, e *physic.Env) {
	e.Temperature = physic.Temperature(r.AmbientTemp)*10*physic.MilliKelvin + physic.ZeroCelsius
	e.Humidity = physic.RelativeHumidity(r.RelHumidity) * (physic.PercentRH / 100)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
