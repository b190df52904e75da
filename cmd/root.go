package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kmsload/internal/banner"
	"kmsload/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "kmsload",
	Short: "kmsload - synthetic traffic for the KMS concept API",
	Long: `
kmsload drives weighted, paced GET traffic against a Knowledge Management
Service from seeded concept ids, preferred labels and scheme names.

Subcommands:
1. run      Send traffic for a scenario (headless, or --tui for a dashboard)
2. urls     Print the URLs a scenario would hit
3. dummy    Serve a fake KMS behind a single-decode gateway
4. history  List or show past runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logging.New(viper.GetString("log-level"))
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd, urlsCmd, dummyCmd, historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kmsload.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".kmsload")
		}
	}

	viper.SetEnvPrefix("KMSLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// the deployment scripts export the bare name
	viper.BindEnv("base-path", "KMSLOAD_BASE_PATH", "KMS_BASE_PATH")

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		fmt.Fprintf(os.Stderr, "⚠️  unable to read config: %v\n", err)
	}
}

// bindFlags binds the executing command's flags so the config file and
// environment fill in whatever was not set on the command line.
func bindFlags(cmd *cobra.Command, args []string) error {
	return viper.BindPFlags(cmd.Flags())
}
