package common

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/sprint-report/internal/config"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// SetupA2AClient creates and configures an A2A client with appropriate authentication
func SetupA2AClient(cfg *config.Config, targetURL string) (*client.A2AClient, error) {
	var a2aClient *client.A2AClient
	var err error

	switch cfg.AuthType {
	case "apikey":
		log.Debugf("Using API key authentication for A2A client (API key length: %d)", len(cfg.APIKey))
		a2aClient, err = client.NewA2AClient(targetURL, client.WithAPIKeyAuth(cfg.APIKey, "X-API-Key"))
	default:
		if cfg.AuthType != "" {
			log.Warnf("Auth type %q is not supported by the client, sending unauthenticated", cfg.AuthType)
		}
		a2aClient, err = client.NewA2AClient(targetURL)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client: %w", err)
	}
	return a2aClient, nil
}

// NewReportMessage wraps a report request as a data part.
func NewReportMessage(req models.ReportRequest) protocol.Message {
	dataPart := protocol.DataPart{
		Type: "data",
		Data: req,
		Metadata: map[string]any{
			"content-type": "application/json",
		},
	}
	return protocol.Message{Parts: []protocol.Part{&dataPart}}
}

// SubmitReport sends a report request and waits for the task to finish.
func SubmitReport(ctx context.Context, a2aClient *client.A2AClient, req models.ReportRequest, poll time.Duration) (*models.ReportResult, error) {
	task, err := a2aClient.SendTasks(ctx, protocol.SendTaskParams{Message: NewReportMessage(req)})
	if err != nil {
		return nil, fmt.Errorf("SendTasks RPC failed: %w", err)
	}
	log.Infof("Submitted report for sprint %d as task %s", req.SprintID, task.ID)

	for {
		switch task.Status.State {
		case protocol.TaskState("completed"):
			return ExtractReportResult(task.Status.Message)
		case protocol.TaskState("failed"), protocol.TaskState("canceled"):
			return nil, fmt.Errorf("report task %s %s: %s", task.ID, task.Status.State, statusText(task.Status.Message))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}

		task, err = a2aClient.GetTasks(ctx, protocol.TaskQueryParams{ID: task.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to get task: %w", err)
		}
		log.Debugf("Task %s status: %s", task.ID, task.Status.State)
	}
}

func statusText(message *protocol.Message) string {
	if message == nil {
		return "no details"
	}
	for _, part := range message.Parts {
		if p, ok := part.(*protocol.TextPart); ok && p != nil {
			return p.Text
		}
	}
	b, _ := json.Marshal(message.Parts)
	return string(b)
}
