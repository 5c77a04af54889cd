package agents

import (
	"context"

	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// Limit wraps generate so at most n reports run at once. Callers beyond the
// limit wait for a slot or for their context to end. Every report launches
// its own MCP server container, so one limiter should be shared by all
// entry points.
func Limit(generate GenerateFunc, n int) GenerateFunc {
	sem := make(chan struct{}, max(n, 1))
	return func(ctx context.Context, req models.ReportRequest) (*models.ReportResult, error) {
		select {
		case sem <- struct{}{}:
		default:
			log.Infof("Report for sprint %d waiting for a free slot (%d running)", req.SprintID, cap(sem))
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		defer func() { <-sem }()
		return generate(ctx, req)
	}
}
