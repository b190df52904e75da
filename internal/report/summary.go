package report

import (
	"encoding/json"
	"os"
	"time"

	"kmsload/internal/stats"
)

// Summary is the end-of-run digest, written as JSON and kept in history.
type Summary struct {
	Scenario      string            `json:"scenario"`
	Target        string            `json:"target"`
	StopReason    string            `json:"stop_reason"`
	Duration      time.Duration     `json:"duration_ns"`
	TotalRequests uint64            `json:"total_requests"`
	Success       uint64            `json:"success"`
	Fail          uint64            `json:"fail"`
	Skipped       uint64            `json:"skipped"`
	Bytes         uint64            `json:"bytes"`
	RPS           float64           `json:"rps"`
	AvgLatencyMs  float64           `json:"avg_latency_ms"`
	P50LatencyMs  float64           `json:"p50_latency_ms"`
	P90LatencyMs  float64           `json:"p90_latency_ms"`
	P99LatencyMs  float64           `json:"p99_latency_ms"`
	MaxLatencyMs  int64             `json:"max_latency_ms"`
	ByName        map[string]uint64 `json:"by_name,omitempty"`
	Errors        map[string]uint64 `json:"errors,omitempty"`
}

// Summarize snapshots s. elapsed is the wall time of the run.
func Summarize(s *stats.Stats, elapsed time.Duration) Summary {
	sum := Summary{
		Duration:      elapsed,
		TotalRequests: s.RequestCount(),
		Success:       s.Success,
		Fail:          s.Fail,
		Skipped:       s.Skipped,
		Bytes:         s.Bytes,
		AvgLatencyMs:  s.MeanMs(),
		P50LatencyMs:  s.GetP50(),
		P90LatencyMs:  s.GetP90(),
		P99LatencyMs:  s.GetP99(),
		MaxLatencyMs:  s.MaxMs(),
		ByName:        toMap(s.NameCounts()),
		Errors:        toMap(s.ErrorCounts()),
	}
	if elapsed > 0 {
		sum.RPS = float64(sum.TotalRequests) / elapsed.Seconds()
	}
	return sum
}

func toMap(counts []stats.Count) map[string]uint64 {
	if len(counts) == 0 {
		return nil
	}
	m := make(map[string]uint64, len(counts))
	for _, c := range counts {
		m[c.Key] = c.Count
	}
	return m
}

// ExportSummary writes sum as indented JSON.
func ExportSummary(sum Summary, filename string) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
