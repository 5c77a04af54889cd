package jira

import (
	"context"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/models"
)

// SprintSource defines the sprint operations report generation relies on
type SprintSource interface {
	ListSprints(ctx context.Context, boardID, limit int) ([]models.Sprint, error)
	GetSprintIssues(ctx context.Context, sprintID int) ([]models.Issue, error)
	GetSprintByID(ctx context.Context, sprintID int) models.Sprint
	CheckConnection(ctx context.Context) (bool, error)
	Close() error
}

// SprintEnricher replaces placeholder sprint metadata with real values
type SprintEnricher interface {
	EnrichSprint(ctx context.Context, sprint models.Sprint) models.Sprint
}

// NewMCPSource creates a sprint source backed by the mcp-atlassian container
func NewMCPSource(cfg *config.Config) (SprintSource, error) {
	c, err := NewSprintClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ SprintSource = (*SprintClient)(nil)
var _ SprintEnricher = (*AgileClient)(nil)
