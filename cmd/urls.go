package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kmsload/internal/runner"
	"kmsload/internal/scenario"
)

var urlsCmd = &cobra.Command{
	Use:     "urls",
	Short:   "Print the URLs a scenario would request, without sending traffic",
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadRunOptions()
		if err != nil {
			return err
		}
		return printURLs(os.Stdout, opts, viper.GetBool("relative"))
	},
}

func init() {
	addTargetFlags(urlsCmd)
	urlsCmd.Flags().Bool("relative", false, "print paths only, without host and base path")
}

func printURLs(w io.Writer, opts runOptions, relative bool) error {
	sc, err := scenario.Lookup(opts.Scenario)
	if err != nil {
		return err
	}
	pool, err := loadPool(opts.DataDir)
	if err != nil {
		return err
	}

	prefix := ""
	if !relative {
		if prefix, err = runner.TargetPrefix(opts.Host, opts.BasePath); err != nil {
			return err
		}
	}

	requests := sc.Requests(pool, opts.encoder())
	for _, req := range requests {
		fmt.Fprintln(w, prefix+req.Path)
	}
	log.Infow("listed scenario urls", "scenario", sc.Name, "count", len(requests))
	return nil
}
