package jira

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

const storyPointsField = "customfield_10016"

var issueKeyPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)

// MapSprints converts raw sprint records into validated sprints. raw may be
// a list of records or an object wrapping one under "sprints" or "values".
// Invalid records are logged and skipped.
func MapSprints(raw any, boardID int) []models.Sprint {
	records := sprintRecords(raw)
	sprints := make([]models.Sprint, 0, len(records))
	for _, item := range records {
		rec, ok := item.(map[string]any)
		if !ok {
			log.Warnf("Invalid sprint data: record is %T, not an object", item)
			continue
		}
		sprint, problems := mapSprint(rec, boardID)
		if len(problems) > 0 {
			log.Warnf("Invalid sprint data: %s", strings.Join(problems, "; "))
			log.Debugf("Sprint data: %v", rec)
			continue
		}
		sprints = append(sprints, sprint)
	}
	return sprints
}

func sprintRecords(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"sprints", "values"} {
			if list, ok := v[key].([]any); ok {
				return list
			}
		}
	}
	return nil
}

func mapSprint(rec map[string]any, boardID int) (models.Sprint, []string) {
	var problems []string

	id, ok := toInt(rec["id"])
	if !ok || id <= 0 {
		problems = append(problems, fmt.Sprintf("id: must be a positive integer (got %v)", rec["id"]))
	}
	name, _ := rec["name"].(string)
	if strings.TrimSpace(name) == "" {
		problems = append(problems, "name: must be a non-empty string")
	}
	stateRaw, _ := rec["state"].(string)
	state := models.SprintState(strings.ToLower(stateRaw))
	if !state.Valid() {
		problems = append(problems, fmt.Sprintf("state: must be one of future, active, closed (got %v)", rec["state"]))
	}
	if len(problems) > 0 {
		return models.Sprint{}, problems
	}

	sprint := models.Sprint{
		ID:        id,
		Name:      name,
		State:     state,
		StartDate: firstString(rec, "start_date", "startDate"),
		EndDate:   firstString(rec, "end_date", "endDate"),
		Goal:      firstString(rec, "goal"),
		BoardID:   boardID,
	}
	for _, key := range []string{"board_id", "originBoardId"} {
		if b, ok := toInt(rec[key]); ok && b > 0 {
			sprint.BoardID = b
			break
		}
	}
	return sprint, nil
}

// MapIssues converts a search-style result ({"issues": [...]}) into issues.
// Any other top-level shape yields no issues.
func MapIssues(raw any) []models.Issue {
	obj, ok := raw.(map[string]any)
	if !ok {
		return []models.Issue{}
	}
	list, _ := obj["issues"].([]any)
	issues := make([]models.Issue, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			log.Warnf("Invalid issue data: record is %T, not an object", item)
			continue
		}
		issue, problems := mapIssue(rec)
		if len(problems) > 0 {
			log.Warnf("Invalid issue data: %s", strings.Join(problems, "; "))
			log.Debugf("Issue data: %v", rec)
			continue
		}
		issues = append(issues, issue)
	}
	return issues
}

func mapIssue(rec map[string]any) (models.Issue, []string) {
	var problems []string

	key, _ := rec["key"].(string)
	if !issueKeyPattern.MatchString(key) {
		problems = append(problems, fmt.Sprintf("key: must match %s (got %q)", issueKeyPattern, key))
	}
	summary, _ := issueField(rec, "summary").(string)
	if strings.TrimSpace(summary) == "" {
		problems = append(problems, "summary: must be a non-empty string")
	}
	if len(problems) > 0 {
		return models.Issue{}, problems
	}

	issue := models.Issue{
		Key:       key,
		Summary:   summary,
		Status:    namedField(issueField(rec, "status"), "name"),
		Assignee:  namedField(issueField(rec, "assignee"), "display_name", "displayName", "name"),
		IssueType: namedField(firstNonNil(issueField(rec, "issue_type"), issueField(rec, "issuetype")), "name"),
	}
	if issue.Status == "" {
		issue.Status = "Unknown"
	}
	if issue.IssueType == "" {
		issue.IssueType = "Task"
	}

	points := issueField(rec, "story_points")
	if points == nil {
		points = issueField(rec, storyPointsField)
	}
	issue.StoryPoints = CoerceStoryPoints(points)
	return issue, nil
}

// issueField looks a field up on the flattened record first and then under
// the REST-style "fields" object.
func issueField(rec map[string]any, name string) any {
	if v, ok := rec[name]; ok && v != nil {
		return v
	}
	if fields, ok := rec["fields"].(map[string]any); ok {
		return fields[name]
	}
	return nil
}

// namedField normalizes a value that is either a bare string or an object
// carrying the string under one of keys.
func namedField(v any, keys ...string) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, k := range keys {
			if s, ok := t[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// CoerceStoryPoints converts a heterogeneous story-point value to a float.
// Absent, empty and unconvertible values yield nil; the last is logged.
func CoerceStoryPoints(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			log.Warnf("Invalid story points value %q, ignoring", t.String())
			return nil
		}
		f = n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			log.Warnf("Invalid story points value %q, ignoring", t)
			return nil
		}
		f = n
	default:
		log.Warnf("Invalid story points value %v (%T), ignoring", v, v)
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		log.Warnf("Invalid story points value %v, ignoring", v)
		return nil
	}
	return &f
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
