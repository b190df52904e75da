package storage

import (
	"time"

	"kmsload/internal/report"
	"kmsload/internal/runner"
)

// RunRecord is one finished run as kept in the history database.
type RunRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Scenario  string         `json:"scenario"`
	Config    runner.Config  `json:"config"`
	Summary   report.Summary `json:"summary"`

	// Where the per-request CSV went, if one was written.
	ResultsFile string `json:"results_file,omitempty"`
}

// MaxRuns bounds the history; older runs are pruned on save.
const MaxRuns = 100
