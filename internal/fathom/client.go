package fathom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tuannvm/sprint-report/internal/config"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// DefaultBaseURL is the public Fathom external API.
const DefaultBaseURL = "https://api.fathom.ai/external/v1"

const maxPages = 50

var (
	ErrUnauthorized = errors.New("fathom: authentication failed, invalid API key")
	ErrRateLimited  = errors.New("fathom: rate limit exceeded")
)

// APIError is a non-success response that is not covered by a sentinel.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode >= 500 {
		return fmt.Sprintf("fathom: server error (%d), the service may be temporarily unavailable", e.StatusCode)
	}
	return fmt.Sprintf("fathom: request failed: status %d, body: %s", e.StatusCode, e.Body)
}

// MeetingSource lists recorded meetings in a time window.
type MeetingSource interface {
	SprintMeetings(ctx context.Context, start, end time.Time) ([]models.Meeting, error)
}

// Client represents a Fathom API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// SummaryConcurrency bounds parallel summary fetches.
	SummaryConcurrency int
}

// NewClient creates a new Fathom client
func NewClient(cfg *config.Config) *Client {
	base := cfg.FathomBaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.FathomAPIKey,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		SummaryConcurrency: 4,
	}
}

// get performs an authenticated GET. found is false on 404, which Fathom
// returns when a window has no meetings.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (found bool, err error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	log.Debugf("GET %s", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		log.Debugf("Resource not found: %s", endpoint)
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

type meetingPage struct {
	Items      []map[string]any `json:"items"`
	Data       []map[string]any `json:"data"`
	Meetings   []map[string]any `json:"meetings"`
	NextCursor string           `json:"next_cursor"`
}

func (p *meetingPage) records() []map[string]any {
	switch {
	case p.Items != nil:
		return p.Items
	case p.Data != nil:
		return p.Data
	default:
		return p.Meetings
	}
}

// ListMeetings returns every meeting created in [start, end], following cursors.
func (c *Client) ListMeetings(ctx context.Context, start, end time.Time) ([]models.Meeting, error) {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("created_after", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("created_before", end.UTC().Format(time.RFC3339))
	}
	log.Infof("Listing meetings from %s to %s", params.Get("created_after"), params.Get("created_before"))

	var meetings []models.Meeting
	for page := 0; page < maxPages; page++ {
		var p meetingPage
		found, err := c.get(ctx, "/meetings", params, &p)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		for _, rec := range p.records() {
			meetings = append(meetings, toMeeting(rec))
		}
		if p.NextCursor == "" {
			break
		}
		params.Set("cursor", p.NextCursor)
	}

	log.Infof("Retrieved %d meetings", len(meetings))
	return meetings, nil
}

// GetSummary fetches the AI summary of a recording; an unknown recording has no summary.
func (c *Client) GetSummary(ctx context.Context, recordingID string) (string, error) {
	var raw any
	found, err := c.get(ctx, "/recordings/"+url.PathEscape(recordingID)+"/summary", nil, &raw)
	if err != nil || !found {
		return "", err
	}
	return summaryText(raw), nil
}

// SprintMeetings lists the meetings in the window and attaches summaries.
// A failed summary is logged and left empty.
func (c *Client) SprintMeetings(ctx context.Context, start, end time.Time) ([]models.Meeting, error) {
	meetings, err := c.ListMeetings(ctx, start, end)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.SummaryConcurrency, 1))
	for i := range meetings {
		if meetings[i].ID == "" || meetings[i].Summary != "" {
			continue
		}
		g.Go(func() error {
			summary, err := c.GetSummary(gctx, meetings[i].ID)
			if err != nil {
				log.Warnf("Error fetching summary for %s: %v", meetings[i].ID, err)
				return nil
			}
			meetings[i].Summary = summary
			return nil
		})
	}
	_ = g.Wait()
	return meetings, nil
}

func toMeeting(rec map[string]any) models.Meeting {
	m := models.Meeting{
		ID:    firstID(rec, "recording_id", "id"),
		Title: firstString(rec, "title", "meeting_title"),
		Date:  firstString(rec, "start_time", "recording_start_time", "scheduled_start_time", "created_at", "date"),
		URL:   firstString(rec, "share_url", "url"),
	}
	if m.Title == "" {
		m.Title = "Untitled"
	}
	if s, ok := rec["summary"]; ok {
		m.Summary = summaryText(s)
	} else if s, ok := rec["default_summary"]; ok {
		m.Summary = summaryText(s)
	}
	if m.ID == "" {
		log.Warnf("Meeting missing ID: %s", m.Title)
	}
	return m
}

// summaryText accepts the summary as a bare string or an object carrying it.
func summaryText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, k := range []string{"markdown_formatted", "summary", "content", "markdown", "text"} {
			if s := summaryText(t[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstID(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
