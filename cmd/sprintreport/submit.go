package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/common"
	"github.com/tuannvm/sprint-report/internal/models"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Ask a running agent to generate a sprint report",
	RunE:  runSubmit,
}

var (
	submitSprint int
	submitBoard  int
	submitURL    string
	submitPDF    bool
	submitPoll   time.Duration
)

func init() {
	submitCmd.Flags().IntVar(&submitSprint, "sprint", 0, "Sprint ID (required)")
	submitCmd.Flags().IntVar(&submitBoard, "board", 0, "Board ID the sprint belongs to")
	submitCmd.Flags().StringVar(&submitURL, "url", "", "Agent URL (default agent.url)")
	submitCmd.Flags().BoolVar(&submitPDF, "pdf", false, "Also render a PDF")
	submitCmd.Flags().DurationVar(&submitPoll, "poll", 2*time.Second, "Task status poll interval")
	_ = submitCmd.MarkFlagRequired("sprint")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	url := submitURL
	if url == "" {
		url = cfg.AgentURL
	}
	a2aClient, err := common.SetupA2AClient(cfg, url)
	if err != nil {
		return err
	}

	result, err := common.SubmitReport(cmd.Context(), a2aClient, models.ReportRequest{
		SprintID: submitSprint,
		BoardID:  submitBoard,
		PDF:      submitPDF,
	}, submitPoll)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}
