package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/tuannvm/sprint-report/internal/common"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// GenerateFunc produces the report for one request.
type GenerateFunc func(ctx context.Context, req models.ReportRequest) (*models.ReportResult, error)

// ReportAgent implements the TaskProcessor interface from trpc-a2a-go
type ReportAgent struct {
	generate GenerateFunc
}

// statusHandle is the part of taskmanager.TaskHandle the agent uses.
type statusHandle interface {
	UpdateStatus(state protocol.TaskState, message *protocol.Message) error
	AddArtifact(artifact protocol.Artifact) error
}

// NewReportAgent creates a new ReportAgent
func NewReportAgent(generate GenerateFunc) *ReportAgent {
	return &ReportAgent{generate: generate}
}

// Process implements the TaskProcessor interface from trpc-a2a-go
func (a *ReportAgent) Process(ctx context.Context, taskID string, message protocol.Message, handle taskmanager.TaskHandle) error {
	return a.process(ctx, taskID, message, handle)
}

func (a *ReportAgent) process(ctx context.Context, taskID string, message protocol.Message, handle statusHandle) error {
	log.Infof("Received task with ID: %s", taskID)

	if err := handle.UpdateStatus(protocol.TaskState("working"), nil); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	req, err := common.ExtractReportRequest(message)
	if errors.Is(err, common.ErrNotReportTrigger) {
		log.Infof("Task %s ignored: %v", taskID, err)
		return handle.UpdateStatus(protocol.TaskState("completed"), textMessage(fmt.Sprintf("ignored: %v", err)))
	}
	if err != nil {
		return a.fail(handle, fmt.Errorf("failed to extract report request: %w", err))
	}

	log.Infof("Generating report for sprint %d (task %s)", req.SprintID, taskID)
	result, err := a.generate(ctx, req)
	if err != nil {
		return a.fail(handle, fmt.Errorf("failed to generate report: %w", err))
	}

	for _, artifact := range reportArtifacts(result) {
		if err := handle.AddArtifact(artifact); err != nil {
			return fmt.Errorf("failed to record artifact: %w", err)
		}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal report result: %w", err)
	}
	if err := handle.UpdateStatus(protocol.TaskState("completed"), textMessage(string(resultJSON))); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	log.Infof("Task %s completed successfully", taskID)
	return nil
}

func (a *ReportAgent) fail(handle statusHandle, err error) error {
	log.Errorf("%v", err)
	if updateErr := handle.UpdateStatus(protocol.TaskState("failed"), textMessage(err.Error())); updateErr != nil {
		log.Warnf("Failed to mark task failed: %v", updateErr)
	}
	return err
}

// reportArtifacts records each written output file as an artifact.
func reportArtifacts(result *models.ReportResult) []protocol.Artifact {
	outputs := []struct {
		name, description, path string
	}{
		{"markdown", "Sprint report (Markdown)", result.MarkdownPath},
		{"html", "Sprint report (HTML)", result.HTMLPath},
		{"pdf", "Sprint report (PDF)", result.PDFPath},
	}

	var artifacts []protocol.Artifact
	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		artifacts = append(artifacts, protocol.Artifact{
			Name:        common.StringPtr(out.name),
			Description: common.StringPtr(out.description),
			Parts:       []protocol.Part{},
			Metadata: map[string]any{
				"path":     out.path,
				"sprintId": result.Sprint.ID,
			},
		})
	}
	return artifacts
}

func textMessage(text string) *protocol.Message {
	return &protocol.Message{Parts: []protocol.Part{protocol.NewTextPart(text)}}
}
