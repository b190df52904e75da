package runner

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmsload/internal/dummy"
	"kmsload/internal/metrics"
	"kmsload/internal/pacing"
	"kmsload/internal/report"
	"kmsload/internal/scenario"
	"kmsload/internal/seeds"
)

type memSink struct {
	mu   sync.Mutex
	rows []report.Record
}

func (m *memSink) Write(r report.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memSink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func startKMS(t *testing.T, cfg dummy.ServerConfig) (*dummy.Server, string) {
	t.Helper()
	s := dummy.NewServer(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

var noWait = pacing.Spec{Kind: pacing.KindConstant}

func testPool() *seeds.Pool {
	return &seeds.Pool{
		UUIDs:      []string{"u-1", "u-2", "u-3"},
		PrefLabels: []string{"EARTH SCIENCE/ATMOSPHERE", "PLATFORMS"},
		Schemes:    []string{"sciencekeywords"},
	}
}

func feedFor(t *testing.T, name string, pool *seeds.Pool) scenario.Feed {
	t.Helper()
	s, err := scenario.Lookup(name)
	require.NoError(t, err)
	feed, err := s.Feed(pool, scenario.DefaultEncoder)
	require.NoError(t, err)
	return feed
}

var slowKMS = dummy.ServerConfig{MinLatency: 50 * time.Millisecond, MaxLatency: 150 * time.Millisecond}

func TestRunner_StopsAtMaxRequests(t *testing.T) {
	_, host := startKMS(t, slowKMS)

	r, err := NewRunner(Config{Host: host, Users: 8, MaxRequests: 40, Timeout: 5 * time.Second},
		feedFor(t, "mixed", testPool()), noWait, nil, nil)
	require.NoError(t, err)
	sink := &memSink{}
	r.Sink = sink
	r.Metrics = metrics.NewCollector()

	require.NoError(t, r.Run(context.Background()))

	// requests other users had in flight when the budget ran out still count
	assert.Equal(t, StopMaxRequests, r.StopReason())
	assert.Equal(t, uint64(40), r.Stats.RequestCount())
	assert.Equal(t, uint64(40), r.Stats.Success)
	assert.Equal(t, 40, sink.Len())
	assert.Zero(t, r.GetInflight())

	select {
	case <-r.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestRunner_MaxRequestsWithRateLimit(t *testing.T) {
	_, host := startKMS(t, slowKMS)

	r, err := NewRunner(Config{Host: host, Users: 4, MaxRequests: 12, MaxRPS: 40, Timeout: 5 * time.Second},
		feedFor(t, "hammer", testPool()), noWait, nil, nil)
	require.NoError(t, err)
	sink := &memSink{}
	r.Sink = sink

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, StopMaxRequests, r.StopReason())
	assert.Equal(t, 12, sink.Len())
}

func TestRunner_BurstDrainsQueueOnce(t *testing.T) {
	kms, host := startKMS(t, slowKMS)

	pace := pacing.Spec{
		Kind:   pacing.KindBurst,
		Active: pacing.Range{Min: time.Hour, Max: time.Hour},
		Idle:   pacing.Range{Min: time.Second, Max: time.Second},
	}
	r, err := NewRunner(Config{Host: host, Users: 5, Timeout: 5 * time.Second},
		feedFor(t, "burst", testPool()), pace, nil, nil)
	require.NoError(t, err)
	sink := &memSink{}
	r.Sink = sink

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, StopDrained, r.StopReason())
	// 3 concepts, 2 patterns, 1 scheme csv, 3 full paths, listing
	assert.Equal(t, uint64(10), r.Stats.RequestCount())
	assert.Equal(t, 10, sink.Len())
	assert.ElementsMatch(t, []string{"EARTH SCIENCE/ATMOSPHERE", "PLATFORMS"}, kms.Seen(scenario.PathPattern))
	assert.ElementsMatch(t, []string{"u-1", "u-2", "u-3"}, kms.Seen(scenario.PathConcept))
}

func TestRunner_StopsAfterDuration(t *testing.T) {
	_, host := startKMS(t, dummy.ServerConfig{})

	pace := pacing.Spec{Kind: pacing.KindConstant, Wait: 5 * time.Millisecond}
	r, err := NewRunner(Config{Host: host, Users: 2, Duration: 200 * time.Millisecond, Timeout: 5 * time.Second},
		feedFor(t, "hammer", testPool()), pace, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, StopDuration, r.StopReason())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, r.Stats.RequestCount())
	assert.Zero(t, r.Stats.Fail)
}

func TestRunner_CancelStopsActors(t *testing.T) {
	_, host := startKMS(t, dummy.ServerConfig{MinLatency: 20 * time.Millisecond, MaxLatency: 40 * time.Millisecond})

	r, err := NewRunner(Config{Host: host, Users: 2, Timeout: 5 * time.Second},
		feedFor(t, "concepts", testPool()), noWait, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, StopCancelled, r.StopReason())
	// requests cut short by the cancel are not counted as failures
	assert.Zero(t, r.Stats.Fail)
}

func TestRunner_EmptySeedListSkips(t *testing.T) {
	_, host := startKMS(t, dummy.ServerConfig{})

	feed, err := scenario.NewGenerator([]scenario.Template{
		{Path: scenario.PathPattern, Weight: 1, Source: seeds.PrefLabels, Encoding: scenario.PatternEncoding},
	}, &seeds.Pool{}, scenario.DefaultEncoder)
	require.NoError(t, err)

	r, err := NewRunner(Config{Host: host, Users: 2, Duration: 100 * time.Millisecond},
		feed, noWait, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, r.Stats.RequestCount())
	assert.Positive(t, r.Stats.Skipped)
	assert.Equal(t, StopDuration, r.StopReason())
}

func TestRunner_RecordsServerErrors(t *testing.T) {
	_, host := startKMS(t, dummy.ServerConfig{ErrorRate: 1})

	r, err := NewRunner(Config{Host: host, Users: 1, MaxRequests: 5},
		feedFor(t, "hammer", testPool()), noWait, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, uint64(5), r.Stats.Fail)
	counts := r.Stats.ErrorCounts()
	require.Len(t, counts, 1)
	assert.Equal(t, "500", counts[0].Key)

	sum := r.Summary()
	assert.Equal(t, uint64(5), sum.TotalRequests)
	assert.Equal(t, string(StopMaxRequests), sum.StopReason)
	assert.Equal(t, host, sum.Target)
}

func TestRunner_BasePathReachesRoutes(t *testing.T) {
	kms, host := startKMS(t, dummy.ServerConfig{BasePath: "/kms"})

	r, err := NewRunner(Config{Host: host, BasePath: "kms/", Users: 1, MaxRequests: 10},
		feedFor(t, "burst", testPool()), noWait, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, uint64(10), r.Stats.Success)
	assert.Equal(t, uint64(1), kms.Hits(scenario.PathConcepts))
}

func TestRunner_SendsFinalSnapshot(t *testing.T) {
	_, host := startKMS(t, dummy.ServerConfig{})

	updates := make(StatsUpdateChan, 100)
	r, err := NewRunner(Config{Host: host, Users: 1, MaxRequests: 3},
		feedFor(t, "hammer", testPool()), noWait, nil, updates)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))

	var last StatsSnapshot
	for len(updates) > 0 {
		last = <-updates
	}
	assert.True(t, last.Done)
	assert.Equal(t, uint64(3), last.Requests)

	assert.Error(t, r.Run(context.Background()), "a runner runs once")
}

func TestNewRunner_Rejects(t *testing.T) {
	feed := scenario.NewCycleFeed([]scenario.Request{{Path: "/concepts"}})

	_, err := NewRunner(Config{Host: "localhost", Users: 0}, feed, noWait, nil, nil)
	assert.Error(t, err)
	_, err = NewRunner(Config{Host: "", Users: 1}, feed, noWait, nil, nil)
	assert.Error(t, err)
	_, err = NewRunner(Config{Host: "localhost", Users: 1}, nil, noWait, nil, nil)
	assert.Error(t, err)
	_, err = NewRunner(Config{Host: "localhost", Users: 1}, feed, pacing.Spec{Kind: "often"}, nil, nil)
	assert.Error(t, err)
}

func TestTargetPrefix(t *testing.T) {
	tests := []struct {
		host, base, want string
	}{
		{"http://localhost:3013", "", "http://localhost:3013"},
		{"localhost:3013", "/dev", "http://localhost:3013/dev"},
		{"https://cmr.earthdata.nasa.gov/", "kms/", "https://cmr.earthdata.nasa.gov/kms"},
		{"https://cmr.earthdata.nasa.gov/kms", "", "https://cmr.earthdata.nasa.gov/kms"},
		{"http://localhost:3013", "/", "http://localhost:3013"},
	}
	for _, tt := range tests {
		got, err := TargetPrefix(tt.host, tt.base)
		require.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, got, "%s + %s", tt.host, tt.base)
	}
}
