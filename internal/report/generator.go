package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/fathom"
	"github.com/tuannvm/sprint-report/internal/jira"
	"github.com/tuannvm/sprint-report/internal/llm"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// RunLedger records the lifecycle of report runs.
type RunLedger interface {
	CreateRun(ctx context.Context, sprintID, boardID int) (models.RunRecord, error)
	UpdateRun(ctx context.Context, rec models.RunRecord) error
}

// Deps are the collaborators of a Generator. Source and LLM are required.
type Deps struct {
	Source   jira.SprintSource
	Enricher jira.SprintEnricher
	Meetings fathom.MeetingSource
	LLM      llm.LLMClient
	PDF      PDFRenderer
	Runs     RunLedger
}

// Generator turns a sprint into a written report.
type Generator struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// NewGenerator creates a report generator
func NewGenerator(cfg *config.Config, deps Deps) (*Generator, error) {
	if deps.Source == nil {
		return nil, errors.New("report generator requires a sprint source")
	}
	if deps.LLM == nil {
		return nil, errors.New("report generator requires an LLM client")
	}
	return &Generator{cfg: cfg, deps: deps, now: time.Now}, nil
}

// Generate produces the report for req and records the run. A failed run is
// recorded as failed and the error is returned.
func (g *Generator) Generate(ctx context.Context, req models.ReportRequest) (*models.ReportResult, error) {
	if req.SprintID <= 0 {
		return nil, fmt.Errorf("invalid sprint id: %d", req.SprintID)
	}

	run := g.startRun(ctx, req)
	start := g.now()
	log.Infof("Generating report for sprint %d (run %s)", req.SprintID, run.ID)

	result, err := g.generate(ctx, req)
	if err != nil {
		log.Errorf("Report for sprint %d failed: %v", req.SprintID, err)
		run.Status = models.RunFailed
		run.Error = err.Error()
		g.finishRun(run)
		return nil, err
	}

	result.RunID = run.ID
	run.Status = models.RunCompleted
	run.MarkdownPath = result.MarkdownPath
	run.HTMLPath = result.HTMLPath
	run.PDFPath = result.PDFPath
	g.finishRun(run)

	log.Infof("Report for sprint %d written to %s in %.1fs", req.SprintID, result.MarkdownPath, g.now().Sub(start).Seconds())
	return result, nil
}

func (g *Generator) generate(ctx context.Context, req models.ReportRequest) (*models.ReportResult, error) {
	sprint := g.resolveSprint(ctx, req)

	issues, err := g.deps.Source.GetSprintIssues(ctx, sprint.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sprint issues: %w", err)
	}
	log.Infof("Sprint %d has %d issues", sprint.ID, len(issues))
	metrics := ComputeMetrics(issues)

	meetings := g.sprintMeetings(ctx, sprint)

	guide, err := LoadGuide(g.cfg.GuidePath)
	if err != nil {
		return nil, err
	}
	exampleKey := ""
	if len(issues) > 0 {
		exampleKey = issues[0].Key
	}
	prompt, err := BuildPrompt(g.cfg.TeamName, guide, BuildSprintSummary(sprint, issues, metrics), BuildMeetingContext(meetings), exampleKey)
	if err != nil {
		return nil, err
	}

	markdown, err := g.deps.LLM.CompleteWithSystem(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report text: %w", err)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, errors.New("model returned an empty report")
	}

	result := &models.ReportResult{Sprint: sprint, Metrics: metrics, Markdown: markdown}
	if err := g.writeOutputs(ctx, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveSprint fetches sprint metadata, enriches placeholders and applies
// caller overrides.
func (g *Generator) resolveSprint(ctx context.Context, req models.ReportRequest) models.Sprint {
	sprint := g.deps.Source.GetSprintByID(ctx, req.SprintID)
	if g.deps.Enricher != nil {
		sprint = g.deps.Enricher.EnrichSprint(ctx, sprint)
	}
	if req.SprintName != "" {
		sprint.Name = req.SprintName
	}
	if req.StartDate != "" {
		sprint.StartDate = req.StartDate
	}
	if req.EndDate != "" {
		sprint.EndDate = req.EndDate
	}
	if req.BoardID > 0 && sprint.BoardID == 0 {
		sprint.BoardID = req.BoardID
	}
	return sprint
}

// sprintMeetings returns the relevant meetings around the sprint window.
// Meetings are optional context, so every failure degrades to none.
func (g *Generator) sprintMeetings(ctx context.Context, sprint models.Sprint) []models.Meeting {
	if g.deps.Meetings == nil {
		return nil
	}
	start, errStart := parseSprintDate(sprint.StartDate)
	end, errEnd := parseSprintDate(sprint.EndDate)
	if errStart != nil || errEnd != nil {
		log.Warnf("Sprint %d has no usable dates, skipping meetings", sprint.ID)
		return nil
	}

	pad := time.Duration(g.cfg.FathomPaddingDays) * 24 * time.Hour
	all, err := g.deps.Meetings.SprintMeetings(ctx, start.Add(-pad), end.Add(pad))
	if err != nil {
		log.Warnf("Could not fetch meetings for sprint %d: %v", sprint.ID, err)
		return nil
	}

	relevant := fathom.Relevant(fathom.FilterMeetings(all, g.cfg.FathomSearchTerms))
	log.Infof("Using %d of %d meetings for sprint %d", len(relevant), len(all), sprint.ID)
	return relevant
}

func (g *Generator) writeOutputs(ctx context.Context, req models.ReportRequest, result *models.ReportResult) error {
	dir := g.cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	lock, err := lockOutputDir(ctx, dir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	sprint := result.Sprint
	result.MarkdownPath = filepath.Join(dir, ReportFilename(sprint.Name, sprint.ID, "md"))
	if err := writeFileAtomic(result.MarkdownPath, []byte(result.Markdown)); err != nil {
		return err
	}

	html, err := RenderHTML(result.Markdown, Metadata{
		SprintID:   sprint.ID,
		SprintName: sprint.Name,
		StartDate:  sprint.StartDate,
		EndDate:    sprint.EndDate,
		TeamName:   g.cfg.TeamName,
		Generated:  g.now(),
	})
	if err != nil {
		return err
	}
	result.HTMLPath = filepath.Join(dir, ReportFilename(sprint.Name, sprint.ID, "html"))
	if err := writeFileAtomic(result.HTMLPath, []byte(html)); err != nil {
		return err
	}

	if !req.PDF && !g.cfg.PDFEnabled {
		return nil
	}
	if g.deps.PDF == nil {
		log.Warnf("PDF requested but no PDF renderer is configured")
		return nil
	}
	pdfPath := filepath.Join(dir, ReportFilename(sprint.Name, sprint.ID, "pdf"))
	if err := g.deps.PDF.RenderPDF(ctx, html, pdfPath); err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	result.PDFPath = pdfPath
	return nil
}

func (g *Generator) startRun(ctx context.Context, req models.ReportRequest) models.RunRecord {
	run := models.RunRecord{SprintID: req.SprintID, BoardID: req.BoardID, Status: models.RunRunning}
	if g.deps.Runs == nil {
		return run
	}
	created, err := g.deps.Runs.CreateRun(ctx, req.SprintID, req.BoardID)
	if err != nil {
		log.Warnf("Could not record run for sprint %d: %v", req.SprintID, err)
		return run
	}
	created.Status = models.RunRunning
	if err := g.deps.Runs.UpdateRun(ctx, created); err != nil {
		log.Warnf("Could not mark run %s running: %v", created.ID, err)
	}
	return created
}

// finishRun uses a fresh context so a cancelled request is still recorded.
func (g *Generator) finishRun(run models.RunRecord) {
	if g.deps.Runs == nil || run.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.deps.Runs.UpdateRun(ctx, run); err != nil {
		log.Warnf("Could not update run %s: %v", run.ID, err)
	}
}

var sprintDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

func parseSprintDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range sprintDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
