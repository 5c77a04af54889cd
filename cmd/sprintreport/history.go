package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent report runs",
	RunE:  runHistory,
}

var (
	historySprint int
	historyLimit  int
)

func init() {
	historyCmd.Flags().IntVar(&historySprint, "sprint", 0, "Only runs for this sprint")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	runs, err := store.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer func() { _ = runs.Close() }()

	records, err := runs.ListRuns(cmd.Context(), historySprint, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No report runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSPRINT\tSTATUS\tCREATED\tOUTPUT")
	for _, r := range records {
		output := r.MarkdownPath
		if r.Error != "" {
			output = r.Error
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.ID, r.SprintID, r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04"), output)
	}
	return w.Flush()
}
