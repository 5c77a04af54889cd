package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/models"
	"github.com/tuannvm/sprint-report/internal/report"
)

var batchCmd = &cobra.Command{
	Use:   "batch SPRINT_ID...",
	Short: "Generate reports for several sprints",
	Long: `Generate reports for several sprints concurrently. Each sprint gets its
own MCP server process and a failing sprint does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var (
	batchConcurrency int
	batchPDF         bool
)

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Reports in flight (default report.batch_concurrency)")
	batchCmd.Flags().BoolVar(&batchPDF, "pdf", false, "Also render PDFs")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	reqs := make([]models.ReportRequest, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid sprint id %q", arg)
		}
		reqs = append(reqs, models.ReportRequest{SprintID: id, BoardID: cfg.JiraBoardID, PDF: batchPDF})
	}
	if err := requireValidConfig(); err != nil {
		return err
	}

	deps, cleanup, err := buildDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = cfg.BatchConcurrency
	}
	results := report.GenerateMany(cmd.Context(), cfg, sourceFactory, deps, reqs, concurrency)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("Sprint %d: FAILED: %v\n", r.Request.SprintID, r.Err)
			continue
		}
		printResult(r.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(results))
	}
	return nil
}
