package hih61xx

import "time"

// DefaultAddress is the factory I²C address of HIH61xx parts.
const DefaultAddress = 0x27

const (
	// Data sheet indicates 60ms
	PowerUpDelay = 75 * time.Millisecond
	// "Typically 36.65ms"
	ConversionDelay = 45 * time.Millisecond
)

// Published when no valid reading exists.
const (
	SentinelAmbientTemp int16  = 32767
	SentinelRelHumidity uint16 = 65535
)

const (
	resultLen = 4

	// 2^14 - 2, fixed by the data sheet.
	fullScale = 16382

	humidityScale = 10000
	tempScale     = 16500
	tempOffset    = 4000
)

// Status is the status of the last published reading.
type Status uint8

const (
	// Reported by the device in the two top bits of the first result byte.
	StatusNormal Status = iota
	StatusStaleData
	StatusCommandMode
	// StatusNotUsed is reserved by the device. It is passed through as read
	// and is not treated as an error by the driver.
	StatusNotUsed

	// No measurement cycle has completed yet.
	StatusUninitialised
	// The sensor did not acknowledge the probe or the result read failed.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusStaleData:
		return "stale data"
	case StatusCommandMode:
		return "command mode"
	case StatusNotUsed:
		return "not used"
	case StatusUninitialised:
		return "uninitialised"
	case StatusTimeout:
		return "timeout"
	}
	return "unknown"
}

// Phase is the current step of the acquisition cycle.
type Phase uint8

const (
	PhaseOff Phase = iota
	// Power applied, waiting for the power-up delay.
	PhasePoweringUp
	// Conversion started, waiting for completion.
	PhaseConverting
	// Ready to read results.
	PhaseReadingResult
	PhasePoweringDown
	// Results read.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseOff:
		return "off"
	case PhasePoweringUp:
		return "powering up"
	case PhaseConverting:
		return "converting"
	case PhaseReadingResult:
		return "reading result"
	case PhasePoweringDown:
		return "powering down"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}
