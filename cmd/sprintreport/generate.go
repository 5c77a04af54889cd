package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/jira"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
	"github.com/tuannvm/sprint-report/internal/report"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the report for one sprint",
	Long: `Generate the report for one sprint.

Sprint metadata comes from Jira. When the MCP server cannot return it, pass
--name, --start and --end so the report and the meeting search window are
still correct.`,
	Example: `  sprintreport generate --sprint 812
  sprintreport generate --sprint 812 --name "BOPS: Sprint 11" --start 2024-05-20 --end 2024-05-31 --pdf`,
	RunE: runGenerate,
}

var (
	generateSprint  int
	generateBoard   int
	generateName    string
	generateStart   string
	generateEnd     string
	generatePDF     bool
	generatePreview bool
)

func init() {
	generateCmd.Flags().IntVar(&generateSprint, "sprint", 0, "Sprint ID (required)")
	generateCmd.Flags().IntVar(&generateBoard, "board", 0, "Board ID the sprint belongs to")
	generateCmd.Flags().StringVar(&generateName, "name", "", "Override the sprint name")
	generateCmd.Flags().StringVar(&generateStart, "start", "", "Override the sprint start date")
	generateCmd.Flags().StringVar(&generateEnd, "end", "", "Override the sprint end date")
	generateCmd.Flags().BoolVar(&generatePDF, "pdf", false, "Also render a PDF")
	generateCmd.Flags().BoolVar(&generatePreview, "preview", false, "Print the report to the terminal")
	_ = generateCmd.MarkFlagRequired("sprint")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if err := requireValidConfig(); err != nil {
		return err
	}

	deps, cleanup, err := buildDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := jira.NewSprintClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warnf("Closing Jira client: %v", err)
		}
	}()
	deps.Source = src

	gen, err := report.NewGenerator(cfg, deps)
	if err != nil {
		return err
	}
	result, err := gen.Generate(cmd.Context(), models.ReportRequest{
		SprintID:   generateSprint,
		BoardID:    generateBoard,
		SprintName: generateName,
		StartDate:  generateStart,
		EndDate:    generateEnd,
		PDF:        generatePDF,
	})
	if err != nil {
		return err
	}

	if generatePreview {
		if err := report.Preview(os.Stdout, result.Markdown); err != nil {
			log.Warnf("Preview failed: %v", err)
		}
	}
	printResult(result)
	return nil
}

func printResult(result *models.ReportResult) {
	m := result.Metrics
	fmt.Printf("Sprint %d %q: %d/%d issues done (%.0f%%), %.1f/%.1f points\n",
		result.Sprint.ID, result.Sprint.Name, m.CompletedIssues, m.TotalIssues, m.CompletionRate,
		m.CompletedStoryPoints, m.TotalStoryPoints)
	fmt.Printf("  markdown: %s\n", result.MarkdownPath)
	fmt.Printf("  html:     %s\n", result.HTMLPath)
	if result.PDFPath != "" {
		fmt.Printf("  pdf:      %s\n", result.PDFPath)
	}
}
