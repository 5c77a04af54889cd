package report

import (
	"fmt"
	"strings"

	"github.com/tuannvm/sprint-report/internal/models"
)

// ComputeMetrics aggregates completion and story point figures for a sprint.
func ComputeMetrics(issues []models.Issue) models.SprintMetrics {
	m := models.SprintMetrics{
		TotalIssues:    len(issues),
		IssuesByType:   make(map[string]int),
		IssuesByStatus: make(map[string]int),
	}
	for _, issue := range issues {
		m.IssuesByType[issue.IssueType]++
		m.IssuesByStatus[issue.Status]++
		done := issue.Done()
		if done {
			m.CompletedIssues++
		}
		if issue.StoryPoints != nil {
			m.TotalStoryPoints += *issue.StoryPoints
			if done {
				m.CompletedStoryPoints += *issue.StoryPoints
			}
		}
	}
	if m.TotalIssues > 0 {
		m.CompletionRate = float64(m.CompletedIssues) / float64(m.TotalIssues) * 100
	}
	return m
}

// BuildSprintSummary renders the Jira side of the prompt as markdown.
func BuildSprintSummary(sprint models.Sprint, issues []models.Issue, m models.SprintMetrics) string {
	var b strings.Builder
	b.WriteString("# Sprint Data Summary\n\n")
	fmt.Fprintf(&b, "**Sprint:** %s\n", sprint.Name)
	fmt.Fprintf(&b, "**State:** %s\n", sprint.State)
	fmt.Fprintf(&b, "**Dates:** %s → %s\n", shortDate(sprint.StartDate), shortDate(sprint.EndDate))
	if sprint.Goal != "" {
		fmt.Fprintf(&b, "**Goal:** %s\n", sprint.Goal)
	}

	b.WriteString("\n## Metrics\n")
	fmt.Fprintf(&b, "- **Total Issues:** %d\n", m.TotalIssues)
	fmt.Fprintf(&b, "- **Completed Issues:** %d (%.1f%%)\n", m.CompletedIssues, m.CompletionRate)
	fmt.Fprintf(&b, "- **Total Story Points:** %.0f\n", m.TotalStoryPoints)
	fmt.Fprintf(&b, "- **Completed Story Points:** %.0f\n", m.CompletedStoryPoints)

	b.WriteString("\n## Issues by Type\n")
	var order []string
	byType := make(map[string][]models.Issue)
	for _, issue := range issues {
		if _, seen := byType[issue.IssueType]; !seen {
			order = append(order, issue.IssueType)
		}
		byType[issue.IssueType] = append(byType[issue.IssueType], issue)
	}
	for _, typ := range order {
		fmt.Fprintf(&b, "\n### %s (%d)\n", typ, len(byType[typ]))
		for _, issue := range byType[typ] {
			mark := "○"
			if issue.Done() {
				mark = "✓"
			}
			points := ""
			if issue.StoryPoints != nil && *issue.StoryPoints != 0 {
				points = fmt.Sprintf(" (%.0fpts)", *issue.StoryPoints)
			}
			fmt.Fprintf(&b, "- %s **%s**: %s%s\n", mark, issue.Key, issue.Summary, points)
		}
	}
	return b.String()
}

// BuildMeetingContext renders the selected meetings for the prompt.
func BuildMeetingContext(meetings []models.Meeting) string {
	if len(meetings) == 0 {
		return "# Meeting Context\n\nNo meetings selected for this sprint."
	}

	var b strings.Builder
	b.WriteString("# Meeting Context\n\n")
	fmt.Fprintf(&b, "Selected %d meeting(s) related to this sprint:\n\n", len(meetings))
	for i, m := range meetings {
		fmt.Fprintf(&b, "## Meeting %d: %s\n", i+1, m.Title)
		fmt.Fprintf(&b, "**Date:** %s\n", m.Date)
		if m.Confidence != "" {
			fmt.Fprintf(&b, "**Confidence:** %s\n", m.Confidence)
		}
		b.WriteString("\n")
		if m.Summary != "" {
			b.WriteString(strings.TrimSpace(m.Summary))
			b.WriteString("\n\n")
		}
	}
	b.WriteString("**Note:** Use these meetings as context for the sprint report, ")
	b.WriteString("but focus on high-level executive summary rather than technical details.\n")
	return b.String()
}

func shortDate(s string) string {
	if s == "" {
		return "N/A"
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
