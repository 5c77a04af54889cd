package jira

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/mcp"
	"github.com/tuannvm/sprint-report/internal/mcp/mcptest"
	"github.com/tuannvm/sprint-report/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		MCPCallTimeout:      5 * time.Second,
		MCPHandshakeTimeout: 5 * time.Second,
		MCPHealthTimeout:    time.Second,
		MCPDrainTimeout:     -1,
		MCPStopGrace:        time.Second,
		MCPFailureThreshold: 2,
	}
}

type recordedCalls struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
}

func (r *recordedCalls) add(tool string, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]map[string]any)
	}
	r.calls[tool] = append(r.calls[tool], args)
}

func (r *recordedCalls) get(tool string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[tool]
}

func newTestSprintClient(t *testing.T, register func(rec *recordedCalls, add func(string, func(map[string]any) (any, error)))) (*SprintClient, *recordedCalls) {
	t.Helper()
	rec := &recordedCalls{}
	s := mcptest.NewServer()
	register(rec, func(name string, fn func(map[string]any) (any, error)) {
		mcptest.AddJSONTool(s, name, func(args map[string]any) (any, error) {
			rec.add(name, args)
			return fn(args)
		})
	})

	c, err := newSprintClient(testConfig(), mcptest.NewLauncher(s))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func TestListSprintsSkipsInvalidRecord(t *testing.T) {
	c, rec := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSprintsFromBoard, func(map[string]any) (any, error) {
			return []any{
				map[string]any{"id": 501, "name": "Sprint 11", "state": "closed", "start_date": "2024-12-01T00:00:00Z"},
				map[string]any{"id": 502, "state": "active"},
			}, nil
		})
	})
	logs := observeWarnings(t)

	sprints, err := c.ListSprints(context.Background(), 38, 10)
	require.NoError(t, err)
	require.Len(t, sprints, 1)
	assert.Equal(t, 501, sprints[0].ID)
	assert.Equal(t, models.SprintStateClosed, sprints[0].State)
	assert.Equal(t, 38, sprints[0].BoardID)
	assert.Equal(t, 1, logs.Len(), "one warning for the invalid sprint")

	args := rec.get(toolSprintsFromBoard)
	require.Len(t, args, 1)
	assert.Equal(t, "38", args[0]["board_id"])
	assert.EqualValues(t, 10, args[0]["limit"])
	assert.EqualValues(t, 0, args[0]["start_at"])
}

func TestGetSprintIssuesPrimaryPath(t *testing.T) {
	c, rec := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSprintIssues, func(map[string]any) (any, error) {
			return map[string]any{"issues": []any{
				map[string]any{"key": "PLAT-1", "summary": "One", "status": map[string]any{"name": "Done"}, "story_points": 3},
			}}, nil
		})
		add(toolSearch, func(map[string]any) (any, error) {
			return nil, errors.New("should not be called")
		})
	})

	issues, err := c.GetSprintIssues(context.Background(), 812)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "PLAT-1", issues[0].Key)
	assert.Equal(t, "812", rec.get(toolSprintIssues)[0]["sprint_id"])
	assert.Empty(t, rec.get(toolSearch))
}

func TestGetSprintIssuesFallsBackToSearch(t *testing.T) {
	c, rec := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSprintIssues, func(map[string]any) (any, error) {
			return nil, errors.New("read timed out")
		})
		add(toolSearch, func(map[string]any) (any, error) {
			return map[string]any{"issues": []any{
				map[string]any{"key": "PLAT-1", "summary": "One", "status": "Done"},
				map[string]any{"key": "PLAT-2", "summary": "Two", "status": "To Do", "customfield_10016": "5"},
			}}, nil
		})
	})

	issues, err := c.GetSprintIssues(context.Background(), 812)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.NotNil(t, issues[1].StoryPoints)
	assert.Equal(t, 5.0, *issues[1].StoryPoints)

	search := rec.get(toolSearch)
	require.Len(t, search, 1)
	assert.Equal(t, "sprint = 812 ORDER BY rank ASC", search[0]["jql"])
	assert.EqualValues(t, 100, search[0]["max_results"])
	assert.Equal(t, searchFields, search[0]["fields"])
}

func TestGetSprintIssuesBothPathsFail(t *testing.T) {
	c, _ := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSprintIssues, func(map[string]any) (any, error) { return nil, errors.New("primary down") })
		add(toolSearch, func(map[string]any) (any, error) { return nil, errors.New("search down") })
	})

	_, err := c.GetSprintIssues(context.Background(), 812)
	require.Error(t, err)
	assert.True(t, mcp.IsBridgeError(err))
	assert.Contains(t, err.Error(), "could not fetch issues for sprint 812")
	assert.Contains(t, err.Error(), "search down")
}

func TestGetSprintByIDReturnsPlaceholder(t *testing.T) {
	c, rec := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSearch, func(map[string]any) (any, error) {
			return map[string]any{"issues": []any{map[string]any{"key": "PLAT-1", "summary": "x"}}}, nil
		})
	})

	sprint := c.GetSprintByID(context.Background(), 812)
	assert.Equal(t, models.Sprint{ID: 812, Name: "Sprint 812", State: models.SprintStateUnknown}, sprint)
	assert.True(t, sprint.Placeholder())

	probe := rec.get(toolSearch)
	require.Len(t, probe, 1)
	assert.Equal(t, "sprint = 812", probe[0]["jql"])
	assert.EqualValues(t, 1, probe[0]["max_results"])
}

func TestGetSprintByIDDegradesOnFailure(t *testing.T) {
	c, _ := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSearch, func(map[string]any) (any, error) { return nil, errors.New("timeout") })
	})
	logs := observeWarnings(t)

	sprint := c.GetSprintByID(context.Background(), 77)
	assert.Equal(t, "Sprint 77", sprint.Name)
	assert.Equal(t, models.SprintStateUnknown, sprint.State)
	assert.Equal(t, 1, logs.FilterMessageSnippet("using minimal data").Len())
}

func TestCheckConnection(t *testing.T) {
	c, rec := newTestSprintClient(t, func(_ *recordedCalls, add func(string, func(map[string]any) (any, error))) {
		add(toolSearch, func(map[string]any) (any, error) { return map[string]any{"issues": []any{}}, nil })
	})

	ok, err := c.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "project != null", rec.get(toolSearch)[0]["jql"])
}

type stubCaller struct {
	results map[string]any
	errs    map[string]error
	closed  int
}

func (s *stubCaller) Call(_ context.Context, tool string, _ map[string]any) (any, error) {
	if err := s.errs[tool]; err != nil {
		return nil, err
	}
	return s.results[tool], nil
}

func (s *stubCaller) CheckConnection(context.Context) (bool, error) { return true, nil }

func (s *stubCaller) Close() error {
	s.closed++
	return nil
}

func TestSprintClientWithCaller(t *testing.T) {
	stub := &stubCaller{results: map[string]any{
		toolSprintsFromBoard: map[string]any{"values": []any{
			map[string]any{"id": 9, "name": "S9", "state": "active"},
		}},
	}}
	c := NewSprintClientWithCaller(stub)

	sprints, err := c.ListSprints(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Len(t, sprints, 1)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, stub.closed)
}
