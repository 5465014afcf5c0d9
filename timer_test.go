package hih61xx

import (
	"testing"
	"time"
)

func TestMillisTimer(t *testing.T) {
	for _, start := range []uint32{0, 1000, 0xFFFFFFFF - 20, 0xFFFFFFFF} {
		now := start
		tm := &MillisTimer{Now: func() uint32 { return now }}
		tm.Arm(75 * time.Millisecond)

		for _, c := range []struct {
			elapsed uint32
			want    bool
		}{
			{0, false},
			{74, false},
			{75, true},
			{76, true},
			{1 << 20, true},
		} {
			now = start + c.elapsed
			if got := tm.Expired(); got != c.want {
				t.Errorf("start %#x, elapsed %d: Expired() = %v, want %v", start, c.elapsed, got, c.want)
			}
		}
	}
}

func TestClockTimer(t *testing.T) {
	now := time.Unix(1000, 0)
	tm := &clockTimer{now: func() time.Time { return now }}
	if !tm.Expired() {
		t.Fatal("unarmed timer not expired")
	}
	tm.Arm(ConversionDelay)
	if tm.Expired() {
		t.Fatal("expired immediately")
	}
	now = now.Add(ConversionDelay - time.Millisecond)
	if tm.Expired() {
		t.Fatal("expired early")
	}
	now = now.Add(time.Millisecond)
	if !tm.Expired() {
		t.Fatal("not expired at deadline")
	}
}
