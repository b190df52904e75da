package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kmsload/internal/cli"
	"kmsload/internal/logging"
	"kmsload/internal/metrics"
	"kmsload/internal/report"
	"kmsload/internal/runner"
	"kmsload/internal/scenario"
	"kmsload/internal/seeds"
	"kmsload/internal/storage"
	"kmsload/internal/tui/app"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Send traffic for a scenario",
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadRunOptions()
		if err != nil {
			return err
		}
		if opts.WriteConfig != "" {
			if err := writeConfig(opts, opts.WriteConfig); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("✅ Configuration written to %s\n", opts.WriteConfig)
			return nil
		}
		return runLoad(cmd.Context(), opts)
	},
}

func init() {
	addRunFlags(runCmd)
}

// loadPool reads the seed files and warns about the ones that are missing.
func loadPool(dir string) (*seeds.Pool, error) {
	pool, err := seeds.LoadPool(dir)
	if err != nil {
		return nil, fmt.Errorf("seed pool: %w", err)
	}
	for _, path := range pool.Missing {
		log.Warnw("seed file not found, templates using it will be skipped", "path", path)
	}
	log.Infow("seed pool loaded",
		"dir", dir,
		"uuids", pool.Len(seeds.UUIDs),
		"preflabels", pool.Len(seeds.PrefLabels),
		"schemes", pool.Len(seeds.Schemes),
	)
	return pool, nil
}

func runLoad(ctx context.Context, opts runOptions) error {
	sc, err := scenario.Lookup(opts.Scenario)
	if err != nil {
		return err
	}
	pace, err := opts.pacingFor(sc)
	if err != nil {
		return err
	}
	pool, err := loadPool(opts.DataDir)
	if err != nil {
		return err
	}
	feed, err := sc.Feed(pool, opts.encoder())
	if err != nil {
		return err
	}

	runLog := log
	if opts.TUI {
		if runLog, err = logging.NewFile(viper.GetString("log-level"), opts.LogFile); err != nil {
			return err
		}
		defer runLog.Sync()
	}

	updates := make(runner.StatsUpdateChan, 100)
	r, err := runner.NewRunner(opts.runnerConfig(), feed, pace, runLog, updates)
	if err != nil {
		return err
	}

	resultsFile := opts.resultsFile(sc, time.Now())
	if resultsFile != "" {
		sink, err := report.OpenCSV(resultsFile)
		if err != nil {
			return fmt.Errorf("results file: %w", err)
		}
		defer sink.Close()
		r.Sink = sink
	}

	if opts.MetricsAddr != "" {
		r.Metrics = metrics.NewCollector()
		stopMetrics := serveMetrics(opts.MetricsAddr, r.Metrics, runLog)
		defer stopMetrics()
	}

	store := openHistory(opts)
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	if opts.TUI {
		m := app.NewModel(r, cancel, store, sc.Name, pace.String())
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("dashboard: %w", err)
		}
		// quitting the dashboard early stops the run
		cancel()
	} else {
		cli.PrintHeader(os.Stdout, r, cli.Options{Scenario: sc.Name, Pacing: pace.String()})
		cli.Monitor(r, cli.Options{StatusEvery: opts.StatusEvery, Out: os.Stdout})
	}
	if err := <-runErr; err != nil {
		return err
	}

	sum := r.Summary()
	sum.Scenario = sc.Name
	cli.PrintSummary(os.Stdout, sum)

	if resultsFile != "" {
		fmt.Printf("\n💾 Per-request results saved to %s\n", resultsFile)
	}
	if opts.Summary != "" {
		if err := report.ExportSummary(sum, opts.Summary); err != nil {
			log.Errorw("unable to write summary", "path", opts.Summary, "error", err)
		} else {
			fmt.Printf("💾 Summary saved to %s\n", opts.Summary)
		}
	}
	if store != nil {
		rec, err := store.Save(storage.RunRecord{
			Scenario:    sc.Name,
			Config:      r.Cfg,
			Summary:     sum,
			ResultsFile: resultsFile,
		})
		if err != nil {
			log.Errorw("unable to save run history", "error", err)
		} else {
			fmt.Printf("📜 Run recorded as %s\n", rec.ID)
		}
	}
	return nil
}

func openHistory(opts runOptions) *storage.Store {
	if opts.NoHistory {
		return nil
	}
	path := opts.HistoryDB
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			log.Warnw("history disabled", "error", err)
			return nil
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		log.Warnw("history disabled", "error", err)
		return nil
	}
	return store
}

// serveMetrics exposes the collector on addr until the returned func runs.
func serveMetrics(addr string, c *metrics.Collector, log *zap.SugaredLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Infow("serving metrics", "addr", addr, "path", "/metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
