package hih61xx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikesmitty/hih61xx"
	"github.com/mikesmitty/hih61xx/hih61xxtest"
)

// 26.67 °C, 50.00 %RH
var payload = [4]byte{0x1F, 0xFF, 0x67, 0x70}

type fixture struct {
	bus   *hih61xxtest.Bus
	timer *hih61xxtest.Timer
	pin   *hih61xxtest.Pin
	d     *hih61xx.Driver
}

func newFixture(t *testing.T, withPin bool) *fixture {
	t.Helper()
	f := &fixture{
		bus:   &hih61xxtest.Bus{Addr: hih61xx.DefaultAddress, Data: payload},
		timer: &hih61xxtest.Timer{Expire: true},
	}
	cfg := hih61xx.Config{Timer: f.timer}
	if withPin {
		f.pin = &hih61xxtest.Pin{}
		cfg.PowerPin = f.pin
	}
	f.d = hih61xx.NewDriver(f.bus, cfg)
	if err := f.d.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return f
}

func assertTimeout(t *testing.T, d *hih61xx.Driver) {
	t.Helper()
	if d.Status() != hih61xx.StatusTimeout {
		t.Errorf("status = %s, want timeout", d.Status())
	}
	if d.AmbientTemp() != 32767 {
		t.Errorf("temp = %d, want 32767", d.AmbientTemp())
	}
	if d.RelHumidity() != 65535 {
		t.Errorf("rh = %d, want 65535", d.RelHumidity())
	}
	if d.Phase() != hih61xx.PhaseFinished {
		t.Errorf("phase = %s, want finished", d.Phase())
	}
}

func TestNewDriverDefaults(t *testing.T) {
	d := hih61xx.NewDriver(&hih61xxtest.Bus{}, hih61xx.Config{})
	if d.Address() != 0x27 {
		t.Fatalf("address = %#x", d.Address())
	}
	if d.Phase() != hih61xx.PhaseOff || !d.IsPowerOff() || d.IsSampling() {
		t.Fatalf("phase = %s", d.Phase())
	}
	want := hih61xx.Reading{AmbientTemp: 32767, RelHumidity: 65535, Status: hih61xx.StatusUninitialised}
	if d.Reading() != want {
		t.Fatalf("reading = %+v, want %+v", d.Reading(), want)
	}
	if d.String() != "hih61xx{0x27}" {
		t.Fatalf("String() = %q", d.String())
	}
}

func TestCycle(t *testing.T) {
	f := newFixture(t, false)
	f.d.Start()

	phases := []hih61xx.Phase{
		hih61xx.PhaseConverting,
		hih61xx.PhaseReadingResult,
		hih61xx.PhasePoweringDown,
		hih61xx.PhaseFinished,
		hih61xx.PhaseFinished,
	}
	for i, want := range phases {
		f.d.Process()
		if got := f.d.Phase(); got != want {
			t.Fatalf("Process #%d: phase = %s, want %s", i+1, got, want)
		}
	}

	want := hih61xx.Decode(payload)
	if f.d.Reading() != want {
		t.Fatalf("reading = %+v, want %+v", f.d.Reading(), want)
	}
	if f.d.Status() != hih61xx.StatusNormal || f.d.AmbientTemp() != 2667 || f.d.RelHumidity() != 5000 {
		t.Fatalf("reading = %+v", f.d.Reading())
	}
	if f.bus.Probes != 1 || f.bus.Reads != 1 {
		t.Fatalf("probes = %d, reads = %d", f.bus.Probes, f.bus.Reads)
	}
	if f.d.Err() != nil {
		t.Fatalf("Err() = %v", f.d.Err())
	}
}

func TestCycleWaitsForTimer(t *testing.T) {
	f := newFixture(t, false)
	f.timer.Expire = false
	f.d.Start()

	for i := 0; i < 3; i++ {
		f.d.Process()
	}
	if f.d.Phase() != hih61xx.PhasePoweringUp || f.bus.Probes != 0 {
		t.Fatalf("phase = %s, probes = %d", f.d.Phase(), f.bus.Probes)
	}

	f.timer.Expire = true
	f.d.Process()
	f.timer.Expire = false
	f.d.Process()
	if f.d.Phase() != hih61xx.PhaseConverting || f.bus.Reads != 0 {
		t.Fatalf("phase = %s, reads = %d", f.d.Phase(), f.bus.Reads)
	}

	f.timer.Expire = true
	f.d.Process()
	if f.d.Phase() != hih61xx.PhaseReadingResult {
		t.Fatalf("phase = %s", f.d.Phase())
	}

	// Initialise arms power-up, the probe arms conversion.
	want := []time.Duration{hih61xx.PowerUpDelay, hih61xx.ConversionDelay}
	if len(f.timer.Armed) != len(want) {
		t.Fatalf("armed = %v, want %v", f.timer.Armed, want)
	}
	for i := range want {
		if f.timer.Armed[i] != want[i] {
			t.Fatalf("armed = %v, want %v", f.timer.Armed, want)
		}
	}
}

func TestPowerPin(t *testing.T) {
	f := newFixture(t, true)
	if !f.pin.Output || f.pin.Active {
		t.Fatalf("after Initialise: %+v", f.pin)
	}

	f.d.Start()
	if !f.pin.Active {
		t.Fatal("Start did not power the sensor")
	}
	if n := len(f.timer.Armed); n != 2 || f.timer.Armed[1] != hih61xx.PowerUpDelay {
		t.Fatalf("armed = %v", f.timer.Armed)
	}
	for !f.d.IsFinished() {
		f.d.Process()
	}
	if f.pin.Active {
		t.Fatal("sensor still powered after cycle")
	}
	if f.d.Status() != hih61xx.StatusNormal {
		t.Fatalf("status = %s", f.d.Status())
	}
}

func TestProbeFailure(t *testing.T) {
	f := newFixture(t, true)
	f.bus.ProbeErr = hih61xxtest.ErrNoAck

	var powerUp, read int
	f.d.SetPowerUpErrorHandler(func(d *hih61xx.Driver) {
		powerUp++
		if d.Status() != hih61xx.StatusTimeout {
			t.Errorf("handler saw status %s", d.Status())
		}
	})
	f.d.SetReadErrorHandler(func(*hih61xx.Driver) { read++ })

	f.d.Start()
	f.d.Process()

	assertTimeout(t, f.d)
	if powerUp != 1 || read != 0 {
		t.Fatalf("power-up handler calls = %d, read handler calls = %d", powerUp, read)
	}
	if f.pin.Active {
		t.Fatal("sensor still powered")
	}
	if !errors.Is(f.d.Err(), hih61xx.ErrNoAck) || !errors.Is(f.d.Err(), hih61xxtest.ErrNoAck) {
		t.Fatalf("Err() = %v", f.d.Err())
	}

	// No retry until Start is called again.
	f.d.Process()
	f.d.Process()
	if f.bus.Probes != 1 || powerUp != 1 {
		t.Fatalf("probes = %d, handler calls = %d", f.bus.Probes, powerUp)
	}
}

func TestProbeWrongAddress(t *testing.T) {
	bus := &hih61xxtest.Bus{Addr: 0x28, Data: payload}
	d := hih61xx.NewDriver(bus, hih61xx.Config{Timer: &hih61xxtest.Timer{Expire: true}})
	if d.Read() {
		t.Fatal("Read succeeded against a missing device")
	}
	assertTimeout(t, d)
}

func TestReadFailure(t *testing.T) {
	for _, c := range []struct {
		name  string
		setup func(b *hih61xxtest.Bus)
		cause error
	}{
		{"error", func(b *hih61xxtest.Bus) { b.ReadErr = errors.New("bus stuck") }, nil},
		{"short", func(b *hih61xxtest.Bus) { b.Short = 2 }, hih61xxtest.ErrShortRead},
	} {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t, true)
			c.setup(f.bus)

			var powerUp, read int
			f.d.SetPowerUpErrorHandler(func(*hih61xx.Driver) { powerUp++ })
			f.d.SetReadErrorHandler(func(*hih61xx.Driver) { read++ })

			f.d.Start()
			f.d.Process()
			f.d.Process()
			f.d.Process()

			assertTimeout(t, f.d)
			if powerUp != 0 || read != 1 {
				t.Fatalf("power-up handler calls = %d, read handler calls = %d", powerUp, read)
			}
			if f.pin.Active {
				t.Fatal("sensor still powered")
			}
			if !errors.Is(f.d.Err(), hih61xx.ErrRead) {
				t.Fatalf("Err() = %v", f.d.Err())
			}
			if c.cause != nil && !errors.Is(f.d.Err(), c.cause) {
				t.Fatalf("Err() = %v, want %v", f.d.Err(), c.cause)
			}
		})
	}
}

func TestRecoveryAfterFailure(t *testing.T) {
	f := newFixture(t, false)
	f.bus.ProbeErr = hih61xxtest.ErrNoAck
	if f.d.Read() {
		t.Fatal("Read succeeded")
	}

	f.bus.ProbeErr = nil
	if !f.d.Read() {
		t.Fatalf("Read failed: %v", f.d.Err())
	}
	if f.d.Reading() != hih61xx.Decode(payload) || f.d.Err() != nil {
		t.Fatalf("reading = %+v, err = %v", f.d.Reading(), f.d.Err())
	}
}

func TestProcessIdle(t *testing.T) {
	f := newFixture(t, false)
	before := f.d.Reading()
	for i := 0; i < 3; i++ {
		f.d.Process()
	}
	if f.d.Phase() != hih61xx.PhaseOff || f.d.Reading() != before || f.bus.Probes != 0 {
		t.Fatalf("Process mutated an idle driver: phase = %s, reading = %+v", f.d.Phase(), f.d.Reading())
	}

	if !f.d.Read() {
		t.Fatal("Read failed")
	}
	before = f.d.Reading()
	probes, reads := f.bus.Probes, f.bus.Reads
	for i := 0; i < 3; i++ {
		f.d.Process()
	}
	if f.d.Phase() != hih61xx.PhaseFinished || f.d.Reading() != before {
		t.Fatalf("Process mutated a finished driver: phase = %s, reading = %+v", f.d.Phase(), f.d.Reading())
	}
	if f.bus.Probes != probes || f.bus.Reads != reads {
		t.Fatal("Process touched the bus while finished")
	}
}

func TestFinishAborts(t *testing.T) {
	f := newFixture(t, true)
	f.d.Start()
	f.d.Process()
	if f.d.Phase() != hih61xx.PhaseConverting {
		t.Fatalf("phase = %s", f.d.Phase())
	}

	f.d.Finish()
	if !f.d.IsFinished() || f.pin.Active {
		t.Fatalf("phase = %s, pin active = %v", f.d.Phase(), f.pin.Active)
	}
	// The aborted cycle published nothing.
	if f.d.Status() != hih61xx.StatusUninitialised || f.bus.Reads != 0 {
		t.Fatalf("status = %s, reads = %d", f.d.Status(), f.bus.Reads)
	}
}

func TestPredicates(t *testing.T) {
	f := newFixture(t, false)
	check := func() {
		t.Helper()
		if f.d.IsPowerOff() == f.d.IsSampling() {
			t.Fatalf("phase %s: IsPowerOff = IsSampling = %v", f.d.Phase(), f.d.IsSampling())
		}
		off := f.d.Phase() == hih61xx.PhaseOff || f.d.Phase() == hih61xx.PhaseFinished
		if f.d.IsPowerOff() != off {
			t.Fatalf("phase %s: IsPowerOff = %v", f.d.Phase(), f.d.IsPowerOff())
		}
		if f.d.IsFinished() != (f.d.Phase() == hih61xx.PhaseFinished) {
			t.Fatalf("phase %s: IsFinished = %v", f.d.Phase(), f.d.IsFinished())
		}
	}
	check()
	f.d.Start()
	for i := 0; i < 5; i++ {
		check()
		f.d.Process()
	}
	check()
}

func TestRead(t *testing.T) {
	f := newFixture(t, false)
	f.bus.Data = [4]byte{0x40, 0x00, 0x00, 0x00}
	if f.d.Read() {
		t.Fatal("Read reported success for stale data")
	}
	if f.d.Status() != hih61xx.StatusStaleData || f.d.Err() != nil {
		t.Fatalf("status = %s, err = %v", f.d.Status(), f.d.Err())
	}
}

func TestReadContext(t *testing.T) {
	f := newFixture(t, false)
	ok, err := f.d.ReadContext(context.Background(), time.Microsecond)
	if !ok || err != nil {
		t.Fatalf("ReadContext = %v, %v", ok, err)
	}

	f.timer.Expire = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = f.d.ReadContext(ctx, time.Millisecond)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadContext = %v, %v", ok, err)
	}
	if !f.d.IsFinished() {
		t.Fatalf("phase = %s", f.d.Phase())
	}
}

type configurableBus struct {
	hih61xxtest.Bus
	configured int
	err        error
}

func (b *configurableBus) ConfigureBus() error {
	b.configured++
	return b.err
}

func TestInitialiseConfiguresBus(t *testing.T) {
	b := &configurableBus{}
	if err := hih61xx.NewDriver(b, hih61xx.Config{}).Initialise(); err != nil {
		t.Fatal(err)
	}
	if err := hih61xx.NewDriver(b, hih61xx.Config{BusConfigured: true}).Initialise(); err != nil {
		t.Fatal(err)
	}
	if b.configured != 1 {
		t.Fatalf("ConfigureBus called %d times, want 1", b.configured)
	}

	b.err = errors.New("no pins")
	if err := hih61xx.NewDriver(b, hih61xx.Config{}).Initialise(); !errors.Is(err, b.err) {
		t.Fatalf("Initialise() = %v", err)
	}
}

var _ hih61xx.Bus = &hih61xxtest.Bus{}
var _ hih61xx.Timer = &hih61xxtest.Timer{}
var _ hih61xx.PowerPin = &hih61xxtest.Pin{}
