package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInt63n struct {
	values []int64
	i      int
}

func (f *fakeInt63n) Int63n(n int64) int64 {
	if n <= 0 || len(f.values) == 0 {
		return 0
	}
	v := f.values[f.i%len(f.values)]
	f.i++
	if v < 0 {
		v = -v
	}
	return v % n
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Add(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestDraw_InclusiveSampling(t *testing.T) {
	rng := &fakeInt63n{values: []int64{0, 1, 2}}
	r := Range{Min: 10 * time.Millisecond, Max: 12 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, Draw(r, rng))
	assert.Equal(t, 11*time.Millisecond, Draw(r, rng))
	assert.Equal(t, 12*time.Millisecond, Draw(r, rng))
}

func TestDraw_SwapsReversedBounds(t *testing.T) {
	rng := &fakeInt63n{values: []int64{0}}
	got := Draw(Range{Min: 500 * time.Millisecond, Max: 100 * time.Millisecond}, rng)
	assert.Equal(t, 100*time.Millisecond, got)
}

func TestDraw_EqualBoundsAndNonPositive(t *testing.T) {
	rng := &fakeInt63n{values: []int64{999}}
	assert.Equal(t, 123*time.Millisecond, Draw(Range{Min: 123 * time.Millisecond, Max: 123 * time.Millisecond}, rng))
	assert.Zero(t, Draw(Range{Min: -5 * time.Millisecond, Max: -1 * time.Millisecond}, rng))
	assert.Zero(t, Draw(Range{}, nil))
}

func TestConstant(t *testing.T) {
	assert.Equal(t, time.Second, Constant(time.Second).Delay())
	assert.Zero(t, Constant(-time.Second).Delay())
}

func TestBetween_StaysInRange(t *testing.T) {
	b := NewBetween(50*time.Millisecond, 300*time.Millisecond, &fakeInt63n{values: []int64{0, 7, 250, 251, 1000}})
	for i := 0; i < 20; i++ {
		d := b.Delay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestBurst_ActiveThenIdleAfterExactDuration(t *testing.T) {
	clock := newClock()
	five := Range{Min: 5 * time.Second, Max: 5 * time.Second}
	idle := Range{Min: 20 * time.Second, Max: 20 * time.Second}
	b := NewBurst(five, idle, &fakeInt63n{}, clock)

	assert.Equal(t, Active, b.Phase())
	assert.Zero(t, b.Delay())

	clock.Add(4*time.Second + 999*time.Millisecond)
	assert.Equal(t, Active, b.Phase())

	clock.Add(time.Millisecond)
	assert.Equal(t, Idle, b.Phase())
	assert.Equal(t, 20*time.Second, b.Delay())
}

func TestBurst_CyclesIndefinitely(t *testing.T) {
	clock := newClock()
	active := Range{Min: 5 * time.Second, Max: 5 * time.Second}
	idle := Range{Min: 20 * time.Second, Max: 20 * time.Second}
	b := NewBurst(active, idle, &fakeInt63n{}, clock)

	for cycle := 0; cycle < 3; cycle++ {
		assert.Equal(t, Active, b.Phase(), "cycle %d", cycle)
		clock.Add(5 * time.Second)
		assert.Equal(t, Idle, b.Phase(), "cycle %d", cycle)
		clock.Add(10 * time.Second)
		assert.Equal(t, 10*time.Second, b.Delay())
		clock.Add(10 * time.Second)
	}
	assert.Equal(t, Active, b.Phase())
}

func TestBurst_CatchesUpAcrossSeveralPhases(t *testing.T) {
	clock := newClock()
	active := Range{Min: time.Second, Max: time.Second}
	idle := Range{Min: 2 * time.Second, Max: 2 * time.Second}
	b := NewBurst(active, idle, &fakeInt63n{}, clock)

	// 1s active, 2s idle, 1s active, 2s idle: 6.5s lands in the third active window
	clock.Add(6500 * time.Millisecond)
	assert.Equal(t, Active, b.Phase())
	assert.Equal(t, clock.now.Add(500*time.Millisecond), b.Deadline())
}

func TestBurst_DrawsEachWindowFresh(t *testing.T) {
	clock := newClock()
	active := Range{Min: 5 * time.Second, Max: 15 * time.Second}
	idle := Range{Min: 20 * time.Second, Max: 60 * time.Second}
	// active 5s, idle 20s+1ms... values index milliseconds above min
	rng := &fakeInt63n{values: []int64{0, 1, 10000}}
	b := NewBurst(active, idle, rng, clock)

	clock.Add(5 * time.Second)
	require.Equal(t, Idle, b.Phase())
	assert.Equal(t, 20*time.Second+time.Millisecond, b.Delay())

	clock.Add(20*time.Second + time.Millisecond)
	require.Equal(t, Active, b.Phase())
	assert.Equal(t, clock.now.Add(15*time.Second), b.Deadline())
}

func TestSpec_ValidateAndNew(t *testing.T) {
	rng := &fakeInt63n{}
	assert.NoError(t, Spec{Kind: KindConstant, Wait: time.Second}.Validate())
	assert.Error(t, Spec{Kind: KindConstant, Wait: -time.Second}.Validate())
	assert.Error(t, Spec{Kind: "sometimes"}.Validate())
	assert.Error(t, Spec{Kind: KindBurst}.Validate())

	assert.IsType(t, Constant(0), Spec{Kind: KindConstant}.New(rng, nil))
	assert.IsType(t, Between{}, Spec{Kind: KindBetween}.New(rng, nil))
	assert.IsType(t, &Burst{}, Spec{Kind: KindBurst, Active: Range{Min: time.Second, Max: time.Second}}.New(rng, newClock()))
}

func TestWaitOrStop(t *testing.T) {
	fired := make(chan time.Time, 1)
	fired <- time.Now()
	after := func(time.Duration) <-chan time.Time { return fired }

	assert.True(t, waitOrStop(context.Background(), time.Hour, after))
	assert.True(t, waitOrStop(context.Background(), 0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := func(time.Duration) <-chan time.Time { return nil }
	assert.False(t, waitOrStop(ctx, time.Hour, never))
	assert.False(t, WaitOrStop(ctx, 0))
}
