package hih61xx

import "time"

// Timer is a one-shot interval timer polled by Driver.Process.
type Timer interface {
	// Arm (re)starts the timer.
	Arm(d time.Duration)
	// Expired reports whether the armed interval has elapsed.
	Expired() bool
}

// NewTimer returns a Timer backed by the monotonic clock. It never wraps.
func NewTimer() Timer {
	return &clockTimer{now: time.Now}
}

type clockTimer struct {
	now      func() time.Time
	deadline time.Time
}

func (t *clockTimer) Arm(d time.Duration) {
	t.deadline = t.now().Add(d)
}

func (t *clockTimer) Expired() bool {
	return !t.now().Before(t.deadline)
}

// MillisTimer is a Timer built on a free-running 32-bit millisecond counter,
// as found on microcontrollers. Now must be set.
//
// Elapsed time is computed with modular subtraction so the timer stays
// correct when the counter rolls over, for intervals below 2^31 ms.
type MillisTimer struct {
	Now func() uint32

	start    uint32
	interval uint32
}

func (t *MillisTimer) Arm(d time.Duration) {
	t.start = t.Now()
	t.interval = uint32(d / time.Millisecond)
}

func (t *MillisTimer) Expired() bool {
	return t.Now()-t.start >= t.interval
}

var _ Timer = &clockTimer{}
var _ Timer = &MillisTimer{}
