package jira

import (
	"context"
	"encoding/json"
	"fmt"

	agile "github.com/ctreminiom/go-atlassian/v2/jira/agile"

	"github.com/tuannvm/sprint-report/internal/config"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// AgileClient reads sprint metadata from the Jira Agile REST API.
type AgileClient struct {
	client *agile.Client
}

// NewAgileClient creates a new Agile API client based on go-atlassian
func NewAgileClient(cfg *config.Config) (*AgileClient, error) {
	c, err := agile.New(nil, cfg.JiraBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create agile client: %w", err)
	}
	c.Auth.SetBasicAuth(cfg.JiraUsername, cfg.JiraAPIToken)
	return &AgileClient{client: c}, nil
}

// GetSprint fetches a sprint by id.
func (a *AgileClient) GetSprint(ctx context.Context, sprintID int) (models.Sprint, error) {
	scheme, _, err := a.client.Sprint.Get(ctx, sprintID)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("failed to get sprint %d: %w", sprintID, err)
	}

	// Round-trip through JSON so the same mapper validates REST and MCP records.
	b, err := json.Marshal(scheme)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("failed to marshal sprint %d: %w", sprintID, err)
	}
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.Sprint{}, fmt.Errorf("failed to unmarshal sprint %d: %w", sprintID, err)
	}

	sprints := MapSprints([]any{rec}, 0)
	if len(sprints) == 0 {
		return models.Sprint{}, fmt.Errorf("sprint %d: response is not a valid sprint", sprintID)
	}
	return sprints[0], nil
}

// EnrichSprint replaces placeholder metadata with the REST sprint. Errors
// are logged and the placeholder is kept.
func (a *AgileClient) EnrichSprint(ctx context.Context, sprint models.Sprint) models.Sprint {
	if !sprint.Placeholder() {
		return sprint
	}
	got, err := a.GetSprint(ctx, sprint.ID)
	if err != nil {
		log.Warnf("Could not enrich sprint %d: %v", sprint.ID, err)
		return sprint
	}
	log.Debugf("Enriched sprint %d as %q (%s)", got.ID, got.Name, got.State)
	return got
}
