package pacing

import "time"

type Phase int

const (
	Active Phase = iota
	Idle
)

func (p Phase) String() string {
	if p == Idle {
		return "idle"
	}
	return "active"
}

// Burst alternates between an active window, during which requests go out
// back to back, and an idle window with no requests. Each window length is
// drawn fresh when the window is entered. The cycle never terminates.
type Burst struct {
	active Range
	idle   Range
	rng    Rand
	clock  Clock

	phase    Phase
	deadline time.Time
}

// NewBurst starts in the active phase with a freshly drawn duration.
func NewBurst(active, idle Range, rng Rand, clock Clock) *Burst {
	if clock == nil {
		clock = SystemClock
	}
	b := &Burst{
		active: active,
		idle:   idle,
		rng:    rng,
		clock:  clock,
		phase:  Active,
	}
	b.deadline = clock.Now().Add(Draw(active, rng))
	return b
}

// Advance moves the state machine up to now and returns the current phase.
// A phase ends exactly at its deadline.
func (b *Burst) Advance(now time.Time) Phase {
	for !now.Before(b.deadline) {
		next := b.idle
		if b.phase == Idle {
			next = b.active
		}
		d := Draw(next, b.rng)
		if d <= 0 {
			// zero-length windows would never let the loop catch up
			d = time.Millisecond
		}
		b.phase = 1 - b.phase
		b.deadline = b.deadline.Add(d)
	}
	return b.phase
}

func (b *Burst) Phase() Phase {
	return b.Advance(b.clock.Now())
}

// Deadline is the instant the current phase ends.
func (b *Burst) Deadline() time.Time {
	return b.deadline
}

// Delay is zero while active and the remainder of the idle window otherwise.
func (b *Burst) Delay() time.Duration {
	now := b.clock.Now()
	if b.Advance(now) == Active {
		return 0
	}
	return b.deadline.Sub(now)
}
