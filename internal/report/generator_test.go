package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/jira"
	"github.com/tuannvm/sprint-report/internal/models"
	"github.com/tuannvm/sprint-report/internal/store"
)

type stubSource struct {
	sprint    models.Sprint
	issues    []models.Issue
	issuesErr error
	closed    int
	mu        sync.Mutex
}

func (s *stubSource) ListSprints(context.Context, int, int) ([]models.Sprint, error) {
	return []models.Sprint{s.sprint}, nil
}

func (s *stubSource) GetSprintIssues(context.Context, int) ([]models.Issue, error) {
	return s.issues, s.issuesErr
}

func (s *stubSource) GetSprintByID(_ context.Context, id int) models.Sprint {
	if s.sprint.ID == id {
		return s.sprint
	}
	return models.Sprint{ID: id, Name: "Sprint " + strconv.Itoa(id), State: models.SprintStateUnknown}
}

func (s *stubSource) CheckConnection(context.Context) (bool, error) { return true, nil }

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type stubLLM struct {
	reply  string
	err    error
	mu     sync.Mutex
	system string
	user   string
}

func (l *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return l.CompleteWithSystem(ctx, "", prompt)
}

func (l *stubLLM) CompleteWithSystem(_ context.Context, system, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.system, l.user = system, prompt
	return l.reply, l.err
}

type stubMeetings struct {
	meetings   []models.Meeting
	err        error
	start, end time.Time
}

func (m *stubMeetings) SprintMeetings(_ context.Context, start, end time.Time) ([]models.Meeting, error) {
	m.start, m.end = start, end
	return m.meetings, m.err
}

type stubPDF struct {
	err   error
	paths []string
}

func (p *stubPDF) RenderPDF(_ context.Context, html, path string) error {
	if p.err != nil {
		return p.err
	}
	p.paths = append(p.paths, path)
	return os.WriteFile(path, []byte("%PDF-"+html[:5]), 0o644)
}

type stubEnricher struct{ sprint models.Sprint }

func (e stubEnricher) EnrichSprint(_ context.Context, s models.Sprint) models.Sprint {
	if s.Placeholder() && s.ID == e.sprint.ID {
		return e.sprint
	}
	return s
}

func testGeneratorConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	guide := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(guide, []byte("## Sprint Overview\n## Highlights"), 0o644))
	return &config.Config{
		TeamName:          "Platform",
		GuidePath:         guide,
		OutputDir:         filepath.Join(dir, "out"),
		FathomSearchTerms: []string{"platform"},
		FathomPaddingDays: 2,
	}
}

func closedSprint() models.Sprint {
	return models.Sprint{
		ID: 812, Name: "BOPS: Sprint 11", State: models.SprintStateClosed,
		StartDate: "2024-05-20T09:00:00.000Z", EndDate: "2024-05-31T17:00:00.000Z", BoardID: 38,
	}
}

func TestGenerateWritesOutputsAndRecordsRun(t *testing.T) {
	cfg := testGeneratorConfig(t)
	runs, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer runs.Close()

	meetings := &stubMeetings{meetings: []models.Meeting{
		{ID: "1", Title: "Platform planning", Date: "2024-05-20", Summary: "Scope agreed"},
		{ID: "2", Title: "Lunch"},
	}}
	model := &stubLLM{reply: "## Sprint Overview\n\nShipped login."}
	gen, err := NewGenerator(cfg, Deps{
		Source:   &stubSource{sprint: closedSprint(), issues: sampleIssues()},
		Meetings: meetings,
		LLM:      model,
		Runs:     runs,
	})
	require.NoError(t, err)

	result, err := gen.Generate(context.Background(), models.ReportRequest{SprintID: 812, BoardID: 38})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "BOPS-Sprint-11_812.md"), result.MarkdownPath)
	md, err := os.ReadFile(result.MarkdownPath)
	require.NoError(t, err)
	assert.Equal(t, model.reply, string(md))

	html, err := os.ReadFile(result.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Shipped login.")
	assert.Empty(t, result.PDFPath)

	assert.Equal(t, 4, result.Metrics.TotalIssues)
	assert.Contains(t, model.system, "sprint report for Platform.")
	assert.Contains(t, model.user, "**PLAT-1**")
	assert.Contains(t, model.user, "Platform planning")
	assert.NotContains(t, model.user, "Lunch", "LOW confidence meetings are left out")
	assert.Equal(t, time.Date(2024, 5, 18, 9, 0, 0, 0, time.UTC), meetings.start.UTC())
	assert.Equal(t, time.Date(2024, 6, 2, 17, 0, 0, 0, time.UTC), meetings.end.UTC())

	rec, err := runs.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, rec.Status)
	assert.Equal(t, result.MarkdownPath, rec.MarkdownPath)
}

func TestGenerateFailureMarksRunFailed(t *testing.T) {
	cfg := testGeneratorConfig(t)
	runs, err := store.Open(":memory:")
	require.NoError(t, err)
	defer runs.Close()

	gen, err := NewGenerator(cfg, Deps{
		Source: &stubSource{sprint: closedSprint(), issuesErr: errors.New("could not fetch issues for sprint 812")},
		LLM:    &stubLLM{reply: "x"},
		Runs:   runs,
	})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), models.ReportRequest{SprintID: 812})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch sprint issues")

	list, err := runs.ListRuns(context.Background(), 812, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RunFailed, list[0].Status)
	assert.Contains(t, list[0].Error, "could not fetch issues")
}

func TestGenerateAppliesEnrichmentAndOverrides(t *testing.T) {
	cfg := testGeneratorConfig(t)
	model := &stubLLM{reply: "report"}
	enriched := closedSprint()
	enriched.ID = 77
	gen, err := NewGenerator(cfg, Deps{
		Source:   &stubSource{issues: sampleIssues()},
		Enricher: stubEnricher{sprint: enriched},
		LLM:      model,
	})
	require.NoError(t, err)

	result, err := gen.Generate(context.Background(), models.ReportRequest{SprintID: 77, SprintName: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", result.Sprint.Name)
	assert.Equal(t, models.SprintStateClosed, result.Sprint.State)
	assert.Equal(t, "Renamed_77.md", filepath.Base(result.MarkdownPath))
}

func TestGeneratePlaceholderSkipsMeetings(t *testing.T) {
	cfg := testGeneratorConfig(t)
	meetings := &stubMeetings{}
	gen, err := NewGenerator(cfg, Deps{
		Source:   &stubSource{issues: sampleIssues()},
		Meetings: meetings,
		LLM:      &stubLLM{reply: "report"},
	})
	require.NoError(t, err)

	result, err := gen.Generate(context.Background(), models.ReportRequest{SprintID: 5})
	require.NoError(t, err)
	assert.True(t, result.Sprint.Placeholder())
	assert.True(t, meetings.start.IsZero(), "no dates, no meeting lookup")
}

func TestGenerateMeetingErrorsAreNotFatal(t *testing.T) {
	cfg := testGeneratorConfig(t)
	model := &stubLLM{reply: "report"}
	gen, err := NewGenerator(cfg, Deps{
		Source:   &stubSource{sprint: closedSprint(), issues: sampleIssues()},
		Meetings: &stubMeetings{err: errors.New("rate limit exceeded")},
		LLM:      model,
	})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), models.ReportRequest{SprintID: 812})
	require.NoError(t, err)
	assert.Contains(t, model.user, "No meetings selected")
}

func TestGeneratePDF(t *testing.T) {
	cfg := testGeneratorConfig(t)
	pdf := &stubPDF{}
	gen, err := NewGenerator(cfg, Deps{
		Source: &stubSource{sprint: closedSprint(), issues: sampleIssues()},
		LLM:    &stubLLM{reply: "report"},
		PDF:    pdf,
	})
	require.NoError(t, err)

	result, err := gen.Generate(context.Background(), models.ReportRequest{SprintID: 812, PDF: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "BOPS-Sprint-11_812.pdf"), result.PDFPath)
	assert.FileExists(t, result.PDFPath)

	pdf.err = errors.New("no chromium")
	_, err = gen.Generate(context.Background(), models.ReportRequest{SprintID: 812, PDF: true})
	assert.ErrorContains(t, err, "failed to generate PDF")
}

func TestGenerateRejectsBadInput(t *testing.T) {
	cfg := testGeneratorConfig(t)

	_, err := NewGenerator(cfg, Deps{LLM: &stubLLM{}})
	assert.Error(t, err)
	_, err = NewGenerator(cfg, Deps{Source: &stubSource{}})
	assert.Error(t, err)

	gen, err := NewGenerator(cfg, Deps{Source: &stubSource{}, LLM: &stubLLM{reply: "  "}})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), models.ReportRequest{SprintID: 0})
	assert.ErrorContains(t, err, "invalid sprint id")
	_, err = gen.Generate(context.Background(), models.ReportRequest{SprintID: 3})
	assert.ErrorContains(t, err, "empty report")
}

func TestParseSprintDate(t *testing.T) {
	for _, s := range []string{"2024-05-20T09:00:00.000Z", "2024-05-20T09:00:00.000+0000", "2024-05-20T09:00:00+02:00", "2024-05-20"} {
		_, err := parseSprintDate(s)
		assert.NoError(t, err, s)
	}
	_, err := parseSprintDate("yesterday")
	assert.Error(t, err)
}

func TestGenerateManyIsolatesSources(t *testing.T) {
	cfg := testGeneratorConfig(t)
	var (
		mu      sync.Mutex
		sources []*stubSource
	)
	factory := func(context.Context) (jira.SprintSource, error) {
		mu.Lock()
		defer mu.Unlock()
		s := &stubSource{issues: sampleIssues()}
		sources = append(sources, s)
		return s, nil
	}

	reqs := []models.ReportRequest{{SprintID: 1}, {SprintID: 2}, {SprintID: 0}, {SprintID: 4}}
	results := GenerateMany(context.Background(), cfg, factory, Deps{LLM: &stubLLM{reply: "report"}}, reqs, 2)

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, "Sprint-4_4.md", filepath.Base(results[3].Result.MarkdownPath))

	require.Len(t, sources, 4)
	for _, s := range sources {
		assert.Equal(t, 1, s.closed, "every source is closed exactly once")
	}
}

func TestGenerateManyFactoryError(t *testing.T) {
	cfg := testGeneratorConfig(t)
	factory := func(context.Context) (jira.SprintSource, error) { return nil, errors.New("docker not found") }

	results := GenerateMany(context.Background(), cfg, factory, Deps{LLM: &stubLLM{reply: "r"}}, []models.ReportRequest{{SprintID: 1}}, 1)
	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "docker not found")
}
