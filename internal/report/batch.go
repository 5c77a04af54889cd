package report

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tuannvm/sprint-report/internal/config"
	"github.com/tuannvm/sprint-report/internal/jira"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// SourceFactory builds a sprint source for one report. Each report gets its
// own source so concurrent reports never share a subprocess.
type SourceFactory func(ctx context.Context) (jira.SprintSource, error)

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Request models.ReportRequest
	Result  *models.ReportResult
	Err     error
}

// GenerateMany generates reports with at most concurrency in flight. One
// failing report does not stop the others. deps.Source is ignored.
func GenerateMany(ctx context.Context, cfg *config.Config, factory SourceFactory, deps Deps, reqs []models.ReportRequest, concurrency int) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i, req := range reqs {
		results[i].Request = req
		g.Go(func() error {
			results[i].Result, results[i].Err = GenerateOne(ctx, cfg, factory, deps, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Infof("Batch finished: %d succeeded, %d failed", len(reqs)-failed, failed)
	return results
}

// GenerateOne generates a single report with a source of its own.
func GenerateOne(ctx context.Context, cfg *config.Config, factory SourceFactory, deps Deps, req models.ReportRequest) (*models.ReportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprint source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warnf("Closing sprint source for sprint %d: %v", req.SprintID, err)
		}
	}()

	deps.Source = src
	gen, err := NewGenerator(cfg, deps)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, req)
}
