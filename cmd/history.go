package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kmsload/internal/cli"
	"kmsload/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:     "history [id]",
	Short:   "List past runs, or show one by id (a unique prefix is enough)",
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("history-db")
		if path == "" {
			var err error
			if path, err = storage.DefaultPath(); err != nil {
				return err
			}
		}
		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 0 {
			return listHistory(os.Stdout, store)
		}
		return showRun(os.Stdout, store, args[0], viper.GetBool("json"))
	},
}

func init() {
	historyCmd.Flags().String("history-db", "", "history database (default ~/.kmsload/history.db)")
	historyCmd.Flags().Bool("json", false, "print the run as JSON")
}

func listHistory(w io.Writer, store *storage.Store) error {
	items, err := store.List()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No history found. Finished runs are recorded here.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSCENARIO\tTARGET\tREQS\tFAIL\tRPS\tP99 MS\tSTOPPED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.1f\t%.2f\t%s\n",
			item.ID[:min(8, len(item.ID))],
			item.Timestamp.Format("2006-01-02 15:04:05"),
			item.Scenario,
			item.Summary.Target,
			item.Summary.TotalRequests,
			item.Summary.Fail,
			item.Summary.RPS,
			item.Summary.P99LatencyMs,
			item.Summary.StopReason,
		)
	}
	return tw.Flush()
}

func showRun(w io.Writer, store *storage.Store, id string, asJSON bool) error {
	rec, err := store.Get(id)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(w, "Run        : %s\n", rec.ID)
	fmt.Fprintf(w, "Recorded   : %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Scenario   : %s\n", rec.Scenario)
	fmt.Fprintf(w, "Users      : %d\n", rec.Config.Users)
	if rec.ResultsFile != "" {
		fmt.Fprintf(w, "Results    : %s\n", rec.ResultsFile)
	}
	cli.PrintSummary(w, rec.Summary)
	return nil
}
