package stats

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds real-time aggregated metrics for a run
type Stats struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64

	// Skipped counts iterations that found their seed list empty.
	Skipped uint64

	// Latency histogram (microseconds), full response read included
	ResponseTime *SafeHistogram

	mu       sync.Mutex
	byName   map[string]uint64
	byStatus map[string]uint64
}

func NewStats() *Stats {
	return &Stats{
		ResponseTime: NewSafeHistogram(),
		byName:       make(map[string]uint64),
		byStatus:     make(map[string]uint64),
	}
}

// Add records one served request. status 0 means a transport error, in
// which case errText keys the failure summary.
func (s *Stats) Add(name string, status int, success bool, bytes int64, elapsed time.Duration, errText string) {
	atomic.AddUint64(&s.Requests, 1)
	if success {
		atomic.AddUint64(&s.Success, 1)
	} else {
		atomic.AddUint64(&s.Fail, 1)
	}
	if bytes > 0 {
		atomic.AddUint64(&s.Bytes, uint64(bytes))
	}
	s.ResponseTime.RecordDuration(elapsed)

	key := strconv.Itoa(status)
	if status == 0 && errText != "" {
		key = errText
	}

	s.mu.Lock()
	s.byName[name]++
	if !success {
		s.byStatus[key]++
	}
	s.mu.Unlock()
}

func (s *Stats) AddSkipped() {
	atomic.AddUint64(&s.Skipped, 1)
}

func (s *Stats) RequestCount() uint64 { return atomic.LoadUint64(&s.Requests) }

func (s *Stats) ErrorRate() float64 {
	reqs := atomic.LoadUint64(&s.Requests)
	if reqs == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(reqs)) * 100
}

func (s *Stats) percentileMs(q float64) float64 {
	return float64(s.ResponseTime.ValueAtQuantile(q)) / 1000.0
}

func (s *Stats) GetP50() float64 { return s.percentileMs(50) }
func (s *Stats) GetP90() float64 { return s.percentileMs(90) }
func (s *Stats) GetP95() float64 { return s.percentileMs(95) }
func (s *Stats) GetP99() float64 { return s.percentileMs(99) }

// MaxMs returns the slowest response in milliseconds
func (s *Stats) MaxMs() int64 {
	return s.ResponseTime.Max() / 1000
}

// MeanMs returns average response time in milliseconds
func (s *Stats) MeanMs() float64 {
	return s.ResponseTime.Mean() / 1000.0
}

// Count is one row of a per-key breakdown.
type Count struct {
	Key   string
	Count uint64
}

// NameCounts returns served requests per template name, sorted by name.
func (s *Stats) NameCounts() []Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCounts(s.byName)
}

// ErrorCounts returns failures per status code (or transport error text).
func (s *Stats) ErrorCounts() []Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCounts(s.byStatus)
}

func sortedCounts(m map[string]uint64) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
