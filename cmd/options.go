package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kmsload/internal/pacing"
	"kmsload/internal/runner"
	"kmsload/internal/scenario"
)

// runOptions is the effective configuration of a run: flags, then env,
// then the config file, then defaults.
type runOptions struct {
	Scenario string `yaml:"scenario" mapstructure:"scenario"`
	Host     string `yaml:"host" mapstructure:"host"`
	BasePath string `yaml:"base-path" mapstructure:"base-path"`
	DataDir  string `yaml:"data-dir" mapstructure:"data-dir"`

	Users       int           `yaml:"users" mapstructure:"users"`
	Duration    time.Duration `yaml:"duration" mapstructure:"duration"`
	MaxRequests int64         `yaml:"max-requests" mapstructure:"max-requests"`
	MaxRPS      float64       `yaml:"max-rps" mapstructure:"max-rps"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Insecure    bool          `yaml:"insecure" mapstructure:"insecure"`
	Seed        string        `yaml:"seed,omitempty" mapstructure:"seed"`

	NoDoubleEncode bool `yaml:"no-double-encode" mapstructure:"no-double-encode"`

	// Pacing overrides. Sleep is the constant wait; WaitMin/WaitMax
	// replace the random range; a pacing block in the config file replaces
	// the scenario's policy outright.
	Sleep   time.Duration `yaml:"sleep" mapstructure:"sleep"`
	WaitMin time.Duration `yaml:"wait-min,omitempty" mapstructure:"wait-min"`
	WaitMax time.Duration `yaml:"wait-max,omitempty" mapstructure:"wait-max"`
	Pacing  *pacing.Spec  `yaml:"pacing,omitempty" mapstructure:"pacing"`

	Out         string `yaml:"out,omitempty" mapstructure:"out"`
	Summary     string `yaml:"summary,omitempty" mapstructure:"summary"`
	HistoryDB   string `yaml:"history-db,omitempty" mapstructure:"history-db"`
	NoHistory   bool   `yaml:"no-history" mapstructure:"no-history"`
	TUI         bool   `yaml:"tui" mapstructure:"tui"`
	LogFile     string `yaml:"log-file,omitempty" mapstructure:"log-file"`
	MetricsAddr string `yaml:"metrics-addr,omitempty" mapstructure:"metrics-addr"`
	StatusEvery uint64 `yaml:"status-every" mapstructure:"status-every"`

	WriteConfig string `yaml:"-" mapstructure:"write-config"`
}

// addTargetFlags registers the flags shared by run and urls.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("scenario", "s", "concepts", fmt.Sprintf("scenario: %v", scenario.Names()))
	cmd.Flags().StringP("host", "u", "http://localhost:3013", "KMS host, scheme defaults to http")
	cmd.Flags().String("base-path", "", "path prefix in front of every endpoint, env KMS_BASE_PATH (hammer: /kms)")
	cmd.Flags().String("data-dir", "data", "directory holding uuids.txt, prefLabels.txt and schemes.txt")
	cmd.Flags().Bool("no-double-encode", false, "send pattern slashes as %2F instead of %252F")
}

func addRunFlags(cmd *cobra.Command) {
	addTargetFlags(cmd)
	cmd.Flags().IntP("users", "U", 10, "concurrent virtual users (hammer: 100)")
	cmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 runs until interrupted or drained)")
	cmd.Flags().Int64P("max-requests", "n", 0, "stop after this many requests, 0 is unlimited (hammer: 500)")
	cmd.Flags().Float64("max-rps", 0, "global request rate cap across users (0 disables)")
	cmd.Flags().Duration("timeout", 30*time.Second, "per-request timeout")
	cmd.Flags().BoolP("insecure", "k", false, "skip TLS certificate verification")
	cmd.Flags().String("seed", "", "random seed for repeatable runs")

	cmd.Flags().Duration("sleep", 0, "constant wait between a user's requests")
	cmd.Flags().Duration("wait-min", 0, "lower bound of the random wait")
	cmd.Flags().Duration("wait-max", 0, "upper bound of the random wait")

	cmd.Flags().StringP("out", "o", "", "per-request CSV file (burst always writes one)")
	cmd.Flags().String("summary", "", "write the end-of-run summary as JSON")
	cmd.Flags().String("history-db", "", "history database (default ~/.kmsload/history.db)")
	cmd.Flags().Bool("no-history", false, "do not record the run in history")
	cmd.Flags().Bool("tui", false, "show the live dashboard")
	cmd.Flags().String("log-file", "kmsload.log", "where logs go while the dashboard owns the terminal")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	cmd.Flags().Uint64("status-every", 0, "print a progress line every N requests (hammer: 200)")
	cmd.Flags().String("write-config", "", "write the effective configuration as YAML and exit")
}

func loadRunOptions() (runOptions, error) {
	var opts runOptions
	if err := viper.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("config: %w", err)
	}
	if sc, err := scenario.Lookup(opts.Scenario); err == nil {
		opts = opts.withDefaults(sc.Defaults, viper.IsSet)
	}
	return opts, nil
}

// withDefaults applies the scenario's defaults to every key the user left
// alone on the command line, in the environment and in the config file.
func (o runOptions) withDefaults(d scenario.Defaults, isSet func(key string) bool) runOptions {
	if d.Users > 0 && !isSet("users") {
		o.Users = d.Users
	}
	if d.MaxRequests > 0 && !isSet("max-requests") {
		o.MaxRequests = d.MaxRequests
	}
	if d.StatusEvery > 0 && !isSet("status-every") {
		o.StatusEvery = d.StatusEvery
	}
	if d.BasePath != "" && !isSet("base-path") {
		o.BasePath = d.BasePath
	}
	return o
}

func (o runOptions) encoder() scenario.Encoder {
	return scenario.Encoder{DoubleEncodeSlash: !o.NoDoubleEncode}
}

// pacingFor resolves the scenario's policy against the overrides.
func (o runOptions) pacingFor(s scenario.Scenario) (pacing.Spec, error) {
	spec := s.Pacing
	switch {
	case o.Pacing != nil && o.Pacing.Kind != "":
		spec = *o.Pacing
	case spec.Kind == pacing.KindConstant:
		spec.Wait = o.Sleep
	case o.Sleep > 0:
		spec = pacing.Spec{Kind: pacing.KindConstant, Wait: o.Sleep}
	case spec.Kind == pacing.KindBetween && (o.WaitMin > 0 || o.WaitMax > 0):
		if o.WaitMin > 0 {
			spec.Range.Min = o.WaitMin
		}
		if o.WaitMax > 0 {
			spec.Range.Max = o.WaitMax
		}
	}
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return spec, nil
}

func (o runOptions) runnerConfig() runner.Config {
	return runner.Config{
		Host:        o.Host,
		BasePath:    o.BasePath,
		Users:       o.Users,
		Duration:    o.Duration,
		MaxRequests: o.MaxRequests,
		MaxRPS:      o.MaxRPS,
		Timeout:     o.Timeout,
		Insecure:    o.Insecure,
		Seed:        o.Seed,
	}
}

// resultsFile names the CSV sink, or "" when the run keeps none.
func (o runOptions) resultsFile(s scenario.Scenario, now time.Time) string {
	if o.Out != "" {
		return o.Out
	}
	if s.Sink {
		return fmt.Sprintf("kms_%s_%s.csv", s.Name, now.Format("20060102-150405"))
	}
	return ""
}

func writeConfig(o runOptions, path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
