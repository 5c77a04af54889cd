package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/sprint-report/internal/models"
)

const sprintClosedPayload = `{
	"timestamp": 1717171717000,
	"webhookEvent": "sprint_closed",
	"sprint": {
		"id": 812,
		"state": "closed",
		"name": "BOPS: Sprint 11",
		"startDate": "2024-05-20T09:00:00.000Z",
		"endDate": "2024-05-31T17:00:00.000Z",
		"originBoardId": 38
	}
}`

type recordingGenerator struct {
	mu   sync.Mutex
	reqs []models.ReportRequest
}

func (g *recordingGenerator) generate(_ context.Context, req models.ReportRequest) (*models.ReportResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return &models.ReportResult{MarkdownPath: "x.md"}, nil
}

func postWebhook(h http.Handler, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookClosedSprintStartsReport(t *testing.T) {
	gen := &recordingGenerator{}
	h := NewWebhookHandler(context.Background(), gen.generate)

	rec := postWebhook(h, "application/json; charset=utf-8", sprintClosedPayload)
	h.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted"`)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, 812, gen.reqs[0].SprintID)
	assert.Equal(t, 38, gen.reqs[0].BoardID)
	assert.Equal(t, "BOPS: Sprint 11", gen.reqs[0].SprintName)
}

func TestWebhookIgnoresOtherSprintEvents(t *testing.T) {
	gen := &recordingGenerator{}
	h := NewWebhookHandler(context.Background(), gen.generate)

	body := `{"webhookEvent":"sprint_started","sprint":{"id":9,"name":"S9","state":"active"}}`
	rec := postWebhook(h, "application/json", body)
	h.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
	assert.Empty(t, gen.reqs)
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	gen := &recordingGenerator{}
	h := NewWebhookHandler(context.Background(), gen.generate)

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"wrong method", http.MethodGet, "application/json", "", http.StatusMethodNotAllowed},
		{"wrong content type", http.MethodPost, "text/plain", sprintClosedPayload, http.StatusUnsupportedMediaType},
		{"empty body", http.MethodPost, "application/json", "", http.StatusBadRequest},
		{"not a sprint webhook", http.MethodPost, "application/json", `{"webhookEvent":"jira:issue_created","issue":{}}`, http.StatusBadRequest},
		{"invalid sprint", http.MethodPost, "application/json", `{"webhookEvent":"sprint_closed","sprint":{"name":"no id"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/webhook", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	h.Wait()
	assert.Empty(t, gen.reqs)
}
