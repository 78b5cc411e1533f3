package clock

import "time"

// FakeClock is a hand-advanced Clock for tests. Sweep and settlement
// tests pin it to a fixed instant so due dates, received_at stamps and
// event id derivation stay deterministic across runs.
type FakeClock struct {
	now time.Time
}

// NewFakeClock pins the clock at t. The instant is normalized to UTC,
// matching what SystemClock hands out.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. past a charge due date to make
// the reconciliation sweep pick it up.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
