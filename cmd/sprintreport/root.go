package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/fathom"
	"github.com/tuannvm/sprint-report/internal/jira"
	"github.com/tuannvm/sprint-report/internal/llm"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/mcp"
	"github.com/tuannvm/sprint-report/internal/models"
	"github.com/tuannvm/sprint-report/internal/report"
	"github.com/tuannvm/sprint-report/internal/store"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sprintreport",
	Short: "Generate sprint reports from Jira and meeting recordings",
	Long: `sprintreport fetches a sprint's issues from Jira through the
mcp-atlassian server, gathers meeting summaries recorded during the sprint
and asks an LLM to write the report. Reports are written as Markdown and
HTML, and optionally as PDF.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	defer log.Sync()
	defer mcp.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := log.Init(cfg.LogLevel, true); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return nil
}

// requireValidConfig fails with every configuration problem at once.
func requireValidConfig() error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// buildDeps wires every optional collaborator the configuration enables.
// The returned func releases them.
func buildDeps() (report.Deps, func(), error) {
	var deps report.Deps

	model, err := llm.NewClient(cfg)
	if err != nil {
		return deps, nil, err
	}
	deps.LLM = model

	if cfg.JiraRESTEnrich {
		agile, err := jira.NewAgileClient(cfg)
		if err != nil {
			return deps, nil, err
		}
		deps.Enricher = agile
	}
	if cfg.FathomAPIKey != "" {
		deps.Meetings = fathom.NewClient(cfg)
	} else {
		log.Infof("FATHOM_API_KEY is not set, reports will not include meetings")
	}
	deps.PDF = &report.BrowserPDF{ControlURL: cfg.BrowserURL}

	cleanup := func() {}
	if cfg.LedgerPath != "" {
		runs, err := store.Open(cfg.LedgerPath)
		if err != nil {
			return deps, nil, err
		}
		deps.Runs = runs
		cleanup = func() {
			if err := runs.Close(); err != nil {
				log.Warnf("Closing run ledger: %v", err)
			}
		}
	}
	return deps, cleanup, nil
}

// sourceFactory gives every report its own mcp-atlassian process.
func sourceFactory(_ context.Context) (jira.SprintSource, error) {
	return jira.NewMCPSource(cfg)
}

// generateReport is the single-report path shared by the agent and webhook.
func generateReport(deps report.Deps) func(context.Context, models.ReportRequest) (*models.ReportResult, error) {
	return func(ctx context.Context, req models.ReportRequest) (*models.ReportResult, error) {
		return report.GenerateOne(ctx, cfg, sourceFactory, deps, req)
	}
}
