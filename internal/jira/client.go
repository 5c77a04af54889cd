package jira

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tuannvm/sprint-report/internal/config"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/mcp"
	"github.com/tuannvm/sprint-report/internal/models"
)

const (
	toolSprintsFromBoard = "jira_get_sprints_from_board"
	toolSprintIssues     = "jira_get_sprint_issues"
	toolSearch           = "jira_search"

	searchFields     = "summary,status,assignee,issuetype," + storyPointsField
	searchMaxResults = 100
)

// Caller is the bridge surface the sprint client needs.
type Caller interface {
	Call(ctx context.Context, tool string, args map[string]any) (any, error)
	CheckConnection(ctx context.Context) (bool, error)
	Close() error
}

// SprintClient reads sprints and issues through the mcp-atlassian tools.
type SprintClient struct {
	mcp Caller
}

// NewSprintClient starts nothing yet; the container is launched on the first call.
func NewSprintClient(cfg *config.Config) (*SprintClient, error) {
	launcher := &mcp.DockerLauncher{
		DockerPath: cfg.DockerPath,
		Image:      cfg.JiraMCPImage,
		Env: map[string]string{
			"JIRA_URL":       cfg.JiraBaseURL,
			"JIRA_USERNAME":  cfg.JiraUsername,
			"JIRA_API_TOKEN": cfg.JiraAPIToken,
		},
	}
	return newSprintClient(cfg, launcher)
}

func newSprintClient(cfg *config.Config, launcher mcp.Launcher) (*SprintClient, error) {
	client, err := mcp.NewClient(mcp.ClientConfig{
		Launcher:         launcher,
		NamePrefix:       "mcp-jira",
		CallTimeout:      cfg.MCPCallTimeout,
		HandshakeTimeout: cfg.MCPHandshakeTimeout,
		HealthTimeout:    cfg.MCPHealthTimeout,
		DrainTimeout:     cfg.MCPDrainTimeout,
		StopGrace:        cfg.MCPStopGrace,
		FailureThreshold: cfg.MCPFailureThreshold,
		HealthTool:       toolSearch,
		HealthArgs:       map[string]any{"jql": "project != null", "max_results": 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return &SprintClient{mcp: client}, nil
}

// NewSprintClientWithCaller wraps an existing bridge.
func NewSprintClientWithCaller(c Caller) *SprintClient {
	return &SprintClient{mcp: c}
}

// ListSprints returns up to limit recent sprints of a board.
func (c *SprintClient) ListSprints(ctx context.Context, boardID, limit int) ([]models.Sprint, error) {
	result, err := c.mcp.Call(ctx, toolSprintsFromBoard, map[string]any{
		"board_id": strconv.Itoa(boardID),
		"limit":    limit,
		"start_at": 0,
	})
	if err != nil {
		return nil, err
	}
	sprints := MapSprints(result, boardID)
	log.Debugf("Fetched %d sprints for board %d", len(sprints), boardID)
	return sprints, nil
}

// GetSprintIssues fetches the issues of a sprint. The dedicated tool is
// unreliable on large sprints, so a failure there falls back to a JQL search.
func (c *SprintClient) GetSprintIssues(ctx context.Context, sprintID int) ([]models.Issue, error) {
	result, err := c.mcp.Call(ctx, toolSprintIssues, map[string]any{
		"sprint_id": strconv.Itoa(sprintID),
	})
	if err == nil {
		issues := MapIssues(result)
		log.Infof("MCP tool succeeded: fetched %d issues", len(issues))
		return issues, nil
	}
	log.Warnf("MCP tool failed for sprint %d, trying JQL fallback: %v", sprintID, err)

	result, err = c.mcp.Call(ctx, toolSearch, map[string]any{
		"jql":         fmt.Sprintf("sprint = %d ORDER BY rank ASC", sprintID),
		"max_results": searchMaxResults,
		"start_at":    0,
		"fields":      searchFields,
	})
	if err != nil {
		log.Errorf("Both MCP tool and JQL fallback failed: %v", err)
		return nil, fmt.Errorf("could not fetch issues for sprint %d: %w", sprintID, err)
	}
	issues := MapIssues(result)
	log.Infof("JQL fallback succeeded: fetched %d issues", len(issues))
	return issues, nil
}

// GetSprintByID returns placeholder metadata for a sprint. The tool set has
// no sprint lookup, so this only probes whether any issue references the
// sprint; failures degrade to the same placeholder.
func (c *SprintClient) GetSprintByID(ctx context.Context, sprintID int) models.Sprint {
	placeholder := models.Sprint{
		ID:    sprintID,
		Name:  fmt.Sprintf("Sprint %d", sprintID),
		State: models.SprintStateUnknown,
	}

	result, err := c.mcp.Call(ctx, toolSearch, map[string]any{
		"jql":         fmt.Sprintf("sprint = %d", sprintID),
		"max_results": 1,
		"fields":      "summary",
	})
	if err != nil {
		log.Warnf("JQL search failed for sprint %d: %v, using minimal data", sprintID, err)
		return placeholder
	}
	if obj, ok := result.(map[string]any); !ok || len(sliceOf(obj["issues"])) == 0 {
		log.Warnf("Sprint %d found but has no issues, using minimal data", sprintID)
	}
	return placeholder
}

// CheckConnection verifies the bridge can reach Jira.
func (c *SprintClient) CheckConnection(ctx context.Context) (bool, error) {
	return c.mcp.CheckConnection(ctx)
}

// Close stops the MCP server process.
func (c *SprintClient) Close() error {
	return c.mcp.Close()
}

func sliceOf(v any) []any {
	s, _ := v.([]any)
	return s
}
