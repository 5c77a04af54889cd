package models

import "time"

// SprintState is the lifecycle state of a Jira sprint.
type SprintState string

const (
	SprintStateFuture SprintState = "future"
	SprintStateActive SprintState = "active"
	SprintStateClosed SprintState = "closed"
	// SprintStateUnknown marks placeholder sprints whose metadata could not be fetched.
	SprintStateUnknown SprintState = "unknown"
)

// Valid reports whether s is one of the states Jira itself reports.
func (s SprintState) Valid() bool {
	switch s {
	case SprintStateFuture, SprintStateActive, SprintStateClosed:
		return true
	}
	return false
}

// Sprint represents a Jira sprint mapped from raw tool output
type Sprint struct {
	ID        int         `json:"id"`
	Name      string      `json:"name"`
	State     SprintState `json:"state"`
	StartDate string      `json:"startDate,omitempty"` // ISO 8601 format string
	EndDate   string      `json:"endDate,omitempty"`   // ISO 8601 format string
	BoardID   int         `json:"boardId,omitempty"`
	Goal      string      `json:"goal,omitempty"`
}

// Placeholder reports whether the sprint carries only derived metadata.
func (s Sprint) Placeholder() bool {
	return s.State == SprintStateUnknown
}

// Issue represents a Jira issue belonging to a sprint
type Issue struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Status      string   `json:"status"`
	Assignee    string   `json:"assignee,omitempty"` // display name, empty when unassigned
	IssueType   string   `json:"issueType"`
	StoryPoints *float64 `json:"storyPoints,omitempty"`
}

// Done reports whether the issue is in a completed status.
func (i Issue) Done() bool {
	switch i.Status {
	case "Done", "Closed", "Resolved":
		return true
	}
	return false
}

// SprintMetrics summarizes issue completion for a sprint.
type SprintMetrics struct {
	TotalIssues          int            `json:"totalIssues"`
	CompletedIssues      int            `json:"completedIssues"`
	CompletionRate       float64        `json:"completionRate"`
	TotalStoryPoints     float64        `json:"totalStoryPoints"`
	CompletedStoryPoints float64        `json:"completedStoryPoints"`
	IssuesByType         map[string]int `json:"issuesByType"`
	IssuesByStatus       map[string]int `json:"issuesByStatus"`
}

// MeetingConfidence ranks how likely a meeting is related to the sprint.
type MeetingConfidence string

const (
	ConfidenceHigh MeetingConfidence = "HIGH"
	ConfidenceLow  MeetingConfidence = "LOW"
)

// Meeting is a recorded meeting from the meeting-recording service.
type Meeting struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Date       string            `json:"date"`
	URL        string            `json:"url,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Confidence MeetingConfidence `json:"confidence,omitempty"`
}

// ReportRequest asks for a report covering one sprint.
type ReportRequest struct {
	SprintID int `json:"sprintId"`
	BoardID  int `json:"boardId,omitempty"`
	// Optional overrides for placeholder sprint metadata.
	SprintName string `json:"sprintName,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	// PDF requests a PDF rendering in addition to markdown and HTML.
	PDF bool `json:"pdf,omitempty"`
}

// ReportResult describes a finished report run.
type ReportResult struct {
	RunID        string        `json:"runId"`
	Sprint       Sprint        `json:"sprint"`
	Metrics      SprintMetrics `json:"metrics"`
	Markdown     string        `json:"-"`
	MarkdownPath string        `json:"markdownPath"`
	HTMLPath     string        `json:"htmlPath"`
	PDFPath      string        `json:"pdfPath,omitempty"`
}

// RunStatus is the state of a report run in the ledger.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one report-generation run.
type RunRecord struct {
	ID           string    `json:"id"`
	SprintID     int       `json:"sprintId"`
	BoardID      int       `json:"boardId"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	MarkdownPath string    `json:"markdownPath,omitempty"`
	HTMLPath     string    `json:"htmlPath,omitempty"`
	PDFPath      string    `json:"pdfPath,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
