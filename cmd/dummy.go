package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kmsload/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:     "dummy",
	Short:   "Run a fake KMS behind a single-decode gateway",
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := dummy.NewServer(dummy.ServerConfig{
			Port:       viper.GetInt("port"),
			BasePath:   viper.GetString("base-path"),
			MinLatency: viper.GetDuration("min-latency"),
			MaxLatency: viper.GetDuration("max-latency"),
			ErrorRate:  viper.GetFloat64("error-rate"),
			Log:        log,
		})
		return s.ListenAndServe(ctx)
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 3013, "port to serve on")
	dummyCmd.Flags().String("base-path", "", "path prefix for every route (env KMS_BASE_PATH)")
	dummyCmd.Flags().Duration("min-latency", 10*time.Millisecond, "minimum response delay")
	dummyCmd.Flags().Duration("max-latency", 50*time.Millisecond, "maximum response delay")
	dummyCmd.Flags().Float64("error-rate", 0, "fraction of requests answered with 500")
}
