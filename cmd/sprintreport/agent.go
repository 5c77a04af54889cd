package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	liblog "trpc.group/trpc-go/trpc-a2a-go/log"

	"github.com/tuannvm/sprint-report/internal/agents"
	"github.com/tuannvm/sprint-report/internal/common"
	log "github.com/tuannvm/sprint-report/internal/logging"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve report generation over A2A and Jira webhooks",
	Long: `Run the sprint report agent.

The A2A endpoint accepts tasks whose message carries {"sprintId": N} or a
Jira sprint webhook payload. When server.webhook_port is set, Jira can also
POST sprint webhooks to /webhook on that port; closing a sprint starts a
report in the background.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, _ []string) error {
	if err := requireValidConfig(); err != nil {
		return err
	}

	// Route the A2A library's logs through ours.
	liblog.Default = log.Logger

	deps, cleanup, err := buildDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	// One limit across A2A tasks and webhooks: every report runs its own MCP container.
	generate := agents.Limit(generateReport(deps), cfg.BatchConcurrency)
	srv, err := common.SetupServer(common.ServerOptionsFromConfig(cfg, agents.NewReportAgent(generate)))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return common.StartServer(ctx, srv, cfg.ServerHost, cfg.ServerPort)
	})

	if cfg.WebhookPort > 0 {
		provider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
		if err != nil {
			return err
		}
		// Webhook reports outlive the request but stop with the agent.
		hooks := agents.NewWebhookHandler(ctx, generate)
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.WebhookPort)
		g.Go(func() error {
			return agents.StartWebhookServer(ctx, addr, hooks, provider)
		})
	}

	err = g.Wait()
	log.Infof("Agent shutdown complete")
	return err
}
