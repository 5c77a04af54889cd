package report

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// Prompt is the system and user message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

var systemTemplate = template.Must(template.New("system").Parse(
	`You are an expert technical writer creating an executive-level sprint report for {{.Team}}.

# Your Task

Generate a comprehensive sprint report following the format guide below. The report should be:
- Written for executive/business stakeholders (not developers)
- High-level and focused on outcomes and business value
- Clear, concise, and well-structured
- Following the exact format specified in the guide

# Sprint Report Format Guide

{{.Guide}}
`))

var userTemplate = template.Must(template.New("user").Parse(
	`# Jira Sprint Data

{{.SprintData}}

{{.MeetingContext}}

# Instructions

1. Read the sprint report format guide carefully
2. Analyze the Jira data to understand what was accomplished
3. Use the meetings as additional context (but prioritize Jira data)
4. Write a polished, executive-level report following the guide's structure
5. Use active voice, present tense, and business-focused language
6. Include specific Jira issue references where appropriate (e.g., "→ {{.ExampleKey}}")
7. Focus on business value and outcomes, not technical implementation details

Output the report in Markdown format, ready for PDF generation.
`))

// LoadGuide reads the report format guide.
func LoadGuide(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sprint guide path is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("sprint guide not found: %w", err)
	}
	return string(data), nil
}

// BuildPrompt combines the guide, the sprint data and the meeting context.
func BuildPrompt(team, guide, sprintData, meetingContext, exampleKey string) (Prompt, error) {
	if team == "" {
		team = "the team"
	}
	if exampleKey == "" {
		exampleKey = "PROJ-123"
	}

	var sys, user bytes.Buffer
	if err := systemTemplate.Execute(&sys, map[string]string{"Team": team, "Guide": guide}); err != nil {
		return Prompt{}, fmt.Errorf("failed to render system prompt: %w", err)
	}
	err := userTemplate.Execute(&user, map[string]string{
		"SprintData":     sprintData,
		"MeetingContext": meetingContext,
		"ExampleKey":     exampleKey,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to render user prompt: %w", err)
	}
	return Prompt{System: sys.String(), User: user.String()}, nil
}
