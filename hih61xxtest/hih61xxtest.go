// Package hih61xxtest provides fakes for testing code that uses hih61xx
// without hardware.
package hih61xxtest

import (
	"errors"
	"time"
)

var (
	ErrNoAck     = errors.New("hih61xxtest: no acknowledge")
	ErrShortRead = errors.New("hih61xxtest: short read")
)

// Bus is a fake hih61xx.Bus. It acknowledges probes at Addr and answers reads
// with Data unless ProbeErr or ReadErr is set.
type Bus struct {
	Addr     uint16
	Data     [4]byte
	ProbeErr error
	ReadErr  error
	// Short makes reads return only that many bytes, then fail.
	Short int

	Probes int
	Reads  int
}

func (b *Bus) Probe(addr uint16) error {
	b.Probes++
	if b.ProbeErr != nil {
		return b.ProbeErr
	}
	if addr != b.Addr {
		return ErrNoAck
	}
	return nil
}

func (b *Bus) Read(addr uint16, p []byte) error {
	b.Reads++
	if b.ReadErr != nil {
		return b.ReadErr
	}
	if addr != b.Addr {
		return ErrNoAck
	}
	if b.Short > 0 && b.Short < len(p) {
		copy(p, b.Data[:b.Short])
		return ErrShortRead
	}
	copy(p, b.Data[:])
	return nil
}

// Timer is a fake hih61xx.Timer that expires only when told to.
type Timer struct {
	// Expire is returned by Expired.
	Expire bool
	// Armed records every interval passed to Arm.
	Armed []time.Duration
}

func (t *Timer) Arm(d time.Duration) {
	t.Armed = append(t.Armed, d)
}

func (t *Timer) Expired() bool {
	return t.Expire
}

// Pin is a fake hih61xx.PowerPin recording every level set.
type Pin struct {
	Output bool
	Active bool
	Levels []bool
}

func (p *Pin) ConfigureOutput() {
	p.Output = true
}

func (p *Pin) Set(active bool) {
	p.Active = active
	p.Levels = append(p.Levels, active)
}
