package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"kmsload/internal/report"
	"kmsload/internal/runner"
)

type Options struct {
	Scenario string
	Pacing   string

	// StatusEvery prints a line with the real request count whenever it
	// crosses a multiple of StatusEvery. 0 disables.
	StatusEvery uint64

	Out io.Writer
}

// Monitor renders a one-line progress bar from the runner's snapshots
// until the run finishes. Call it while Run is executing.
func Monitor(r *runner.Runner, opts Options) {
	w := opts.Out
	if w == nil {
		w = os.Stdout
	}
	total := r.Cfg.Duration
	var lastStatus uint64

	render := func(s runner.StatsSnapshot) {
		if line, ok := statusLine(s, opts.StatusEvery, &lastStatus); ok {
			fmt.Fprintf(w, "\r%-100s\r", "")
			fmt.Fprintln(w, line)
		}

		rps := 0.0
		if s.Elapsed.Seconds() > 0 {
			rps = float64(s.Requests) / s.Elapsed.Seconds()
		}

		if total > 0 {
			pct := s.Elapsed.Seconds() / total.Seconds()
			if pct > 1.0 {
				pct = 1.0
			}
			fmt.Fprintf(w, "\r%s %3.0f%% | %s/%s | Inf: %3d | RPS: %.1f | OK: %d | Err: %d | Skip: %d",
				progressBar(pct, 20), pct*100,
				s.Elapsed.Round(time.Second), total,
				s.Inflight, rps, s.Success, s.Fail, s.Skipped,
			)
			return
		}
		fmt.Fprintf(w, "\r⏳ %s | Inf: %3d | RPS: %.1f | OK: %d | Err: %d | Skip: %d",
			s.Elapsed.Round(time.Second), s.Inflight, rps, s.Success, s.Fail, s.Skipped)
	}

	for {
		select {
		case s := <-r.Updates:
			render(s)
			if s.Done {
				fmt.Fprintln(w)
				return
			}
		case <-r.Done():
			render(r.Snapshot())
			fmt.Fprintln(w)
			return
		}
	}
}

// statusLine reports the current count once per snapshot that moves it past
// one or more multiples of every. Snapshots arrive on a timer, so the count
// printed is the exact one rather than the multiple crossed.
func statusLine(s runner.StatsSnapshot, every uint64, last *uint64) (string, bool) {
	if every == 0 || s.Requests/every <= *last {
		return "", false
	}
	*last = s.Requests / every
	return fmt.Sprintf("📨 %d requests sent (ok %d, failed %d)", s.Requests, s.Success, s.Fail), true
}

func PrintHeader(w io.Writer, r *runner.Runner, opts Options) {
	cfg := r.Cfg
	fmt.Fprintf(w, "\n🚀 STARTING KMS LOAD TEST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Scenario   : %s\n", opts.Scenario)
	fmt.Fprintf(w, "Target     : %s\n", r.Target())
	fmt.Fprintf(w, "Users      : %d\n", cfg.Users)
	fmt.Fprintf(w, "Pacing     : %s\n", opts.Pacing)
	fmt.Fprintf(w, "Duration   : %s\n", orUnbounded(cfg.Duration > 0, cfg.Duration.String()))
	fmt.Fprintf(w, "Max Reqs   : %s\n", orUnbounded(cfg.MaxRequests > 0, fmt.Sprint(cfg.MaxRequests)))
	fmt.Fprintf(w, "Max RPS    : %s\n", orUnbounded(cfg.MaxRPS > 0, fmt.Sprintf("%.1f", cfg.MaxRPS)))
	fmt.Fprintf(w, "Timeout    : %s\n", cfg.Timeout)
	fmt.Fprintf(w, "======================================================================\n\n")
}

func orUnbounded(set bool, v string) string {
	if !set {
		return "unbounded"
	}
	return v
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func PrintSummary(w io.Writer, sum report.Summary) {
	fmt.Fprintf(w, "\n📊 LOAD TEST RESULTS\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Stopped        : %s\n", sum.StopReason)
	fmt.Fprintf(w, "Total Duration : %s\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests Sent  : %d\n", sum.TotalRequests)
	fmt.Fprintf(w, "Success        : %d\n", sum.Success)
	fmt.Fprintf(w, "Failures       : %d\n", sum.Fail)
	fmt.Fprintf(w, "Skipped        : %d\n", sum.Skipped)
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", sum.RPS)
	fmt.Fprintf(w, "\n⏱️  RESPONSE TIMES (ms)\n")
	fmt.Fprintf(w, "   Avg : %.2f\n", sum.AvgLatencyMs)
	fmt.Fprintf(w, "   P50 : %.2f\n", sum.P50LatencyMs)
	fmt.Fprintf(w, "   P90 : %.2f\n", sum.P90LatencyMs)
	fmt.Fprintf(w, "   P99 : %.2f\n", sum.P99LatencyMs)
	fmt.Fprintf(w, "   Max : %d\n", sum.MaxLatencyMs)

	if len(sum.ByName) > 0 {
		fmt.Fprintf(w, "\n📍 REQUESTS BY ENDPOINT\n")
		for _, k := range sortedByCount(sum.ByName) {
			fmt.Fprintf(w, "   %6d  %s\n", sum.ByName[k], k)
		}
	}

	if len(sum.Errors) > 0 {
		fmt.Fprintf(w, "\n❌ FAILURE SUMMARY\n")
		for _, k := range sortedByCount(sum.Errors) {
			fmt.Fprintf(w, "   %d x %s\n", sum.Errors[k], k)
		}
	}
	fmt.Fprintf(w, "======================================================================\n")
}

func sortedByCount(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
