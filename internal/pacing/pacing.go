package pacing

import (
	"context"
	"fmt"
	"time"
)

// Rand is the random source a policy draws from. *rand.Rand satisfies it.
type Rand interface {
	Int63n(n int64) int64
}

// Clock abstracts time.Now so the burst cycle can be driven by tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

// Policy returns how long an actor waits before its next request.
// Policies are owned by a single actor and are not safe for concurrent use.
type Policy interface {
	Delay() time.Duration
}

type Kind string

const (
	KindConstant Kind = "constant"
	KindBetween  Kind = "between"
	KindBurst    Kind = "burst"
)

// Range is an inclusive duration range.
type Range struct {
	Min time.Duration `yaml:"min" mapstructure:"min"`
	Max time.Duration `yaml:"max" mapstructure:"max"`
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// Spec describes a pacing policy; New instantiates one per actor.
type Spec struct {
	Kind   Kind          `yaml:"kind" mapstructure:"kind"`
	Wait   time.Duration `yaml:"wait,omitempty" mapstructure:"wait"`
	Range  Range         `yaml:"range,omitempty" mapstructure:"range"`
	Active Range         `yaml:"active,omitempty" mapstructure:"active"`
	Idle   Range         `yaml:"idle,omitempty" mapstructure:"idle"`
}

func (s Spec) Validate() error {
	switch s.Kind {
	case KindConstant:
		if s.Wait < 0 {
			return fmt.Errorf("constant wait must not be negative: %s", s.Wait)
		}
	case KindBetween:
		if s.Range.Min < 0 || s.Range.Max < 0 {
			return fmt.Errorf("wait range must not be negative: %s", s.Range)
		}
	case KindBurst:
		if s.Active.Min <= 0 && s.Active.Max <= 0 {
			return fmt.Errorf("burst active range must be positive: %s", s.Active)
		}
		if s.Idle.Min < 0 || s.Idle.Max < 0 {
			return fmt.Errorf("burst idle range must not be negative: %s", s.Idle)
		}
	default:
		return fmt.Errorf("unknown pacing kind %q", s.Kind)
	}
	return nil
}

func (s Spec) String() string {
	switch s.Kind {
	case KindConstant:
		return fmt.Sprintf("constant %s", s.Wait)
	case KindBetween:
		return fmt.Sprintf("between %s", s.Range)
	case KindBurst:
		return fmt.Sprintf("burst active %s idle %s", s.Active, s.Idle)
	}
	return string(s.Kind)
}

func (s Spec) New(rng Rand, clock Clock) Policy {
	switch s.Kind {
	case KindBetween:
		return Between{Range: s.Range, rng: rng}
	case KindBurst:
		return NewBurst(s.Active, s.Idle, rng, clock)
	default:
		return Constant(s.Wait)
	}
}

// Constant waits the same duration between every request.
type Constant time.Duration

func (c Constant) Delay() time.Duration {
	if c < 0 {
		return 0
	}
	return time.Duration(c)
}

// Between waits a uniformly drawn, millisecond-granular duration.
type Between struct {
	Range Range
	rng   Rand
}

func NewBetween(min, max time.Duration, rng Rand) Between {
	return Between{Range: Range{Min: min, Max: max}, rng: rng}
}

func (b Between) Delay() time.Duration {
	return Draw(b.Range, b.rng)
}

// Draw returns a duration uniformly distributed over r, inclusive, at
// millisecond resolution. Reversed bounds are swapped.
func Draw(r Range, rng Rand) time.Duration {
	min, max := r.Min.Milliseconds(), r.Max.Milliseconds()
	if max < min {
		min, max = max, min
	}
	if max <= min || rng == nil {
		if min <= 0 {
			return 0
		}
		return time.Duration(min) * time.Millisecond
	}
	v := min + rng.Int63n(max-min+1)
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

type afterFunc func(time.Duration) <-chan time.Time

// WaitOrStop sleeps for d unless ctx ends first. It reports whether the
// full delay elapsed.
func WaitOrStop(ctx context.Context, d time.Duration) bool {
	return waitOrStop(ctx, d, time.After)
}

func waitOrStop(ctx context.Context, d time.Duration, after afterFunc) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-after(d):
		return true
	}
}
