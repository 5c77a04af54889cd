package jira

import (
	"testing"
)

const sprintClosedWebhook = `{
  "timestamp": 1717171717000,
  "webhookEvent": "sprint_closed",
  "user": {"name": "brollins", "displayName": "Bryan Rollins"},
  "sprint": {
    "id": 812,
    "self": "https://example.atlassian.net/rest/agile/1.0/sprint/812",
    "state": "closed",
    "name": "Platform Sprint 42",
    "startDate": "2024-05-20T09:00:00.000Z",
    "endDate": "2024-05-31T17:00:00.000Z",
    "completeDate": "2024-05-31T16:12:00.000Z",
    "originBoardId": 38,
    "goal": "Ship the billing migration"
  },
  "oldValue": {"state": "active", "name": "Platform Sprint 42"}
}`

func TestTransformSprintWebhook(t *testing.T) {
	event, err := TransformSprintWebhook([]byte(sprintClosedWebhook))
	if err != nil {
		t.Fatalf("Failed to transform webhook: %v", err)
	}

	if event.Event != "closed" {
		t.Errorf("Expected Event to be closed, got %s", event.Event)
	}
	if event.Sprint.ID != 812 {
		t.Errorf("Expected sprint ID 812, got %d", event.Sprint.ID)
	}
	if event.Sprint.Name != "Platform Sprint 42" {
		t.Errorf("Expected sprint name 'Platform Sprint 42', got %q", event.Sprint.Name)
	}
	if event.Sprint.BoardID != 38 {
		t.Errorf("Expected BoardID 38, got %d", event.Sprint.BoardID)
	}
	if event.Sprint.StartDate != "2024-05-20T09:00:00.000Z" {
		t.Errorf("Expected camelCase start date to be mapped, got %q", event.Sprint.StartDate)
	}
	if event.UserName != "brollins" {
		t.Errorf("Expected UserName to be brollins, got %s", event.UserName)
	}
	if event.Timestamp != "2024-05-31T16:08:37Z" {
		t.Errorf("Expected timestamp 2024-05-31T16:08:37Z, got %s", event.Timestamp)
	}
	if !event.ShouldGenerateReport() {
		t.Error("Expected a closed sprint to trigger a report")
	}

	// Only the state actually changed
	if len(event.Changes) != 1 {
		t.Errorf("Expected 1 change, got %d", len(event.Changes))
	}
	if val := event.Changes["state"]; val != "closed" {
		t.Errorf("Expected state change to be 'closed', got '%s'", val)
	}
}

func TestTransformSprintWebhookRejectsInvalidSprint(t *testing.T) {
	payload := `{"webhookEvent":"sprint_started","sprint":{"id":0,"name":"","state":"running"}}`
	if _, err := TransformSprintWebhook([]byte(payload)); err == nil {
		t.Error("Expected an error for an invalid sprint")
	}

	if _, err := TransformSprintWebhook([]byte(`{"webhookEvent":"sprint_started"}`)); err == nil {
		t.Error("Expected an error for a webhook without sprint")
	}
}

func TestIsSprintWebhook(t *testing.T) {
	if !IsSprintWebhook([]byte(sprintClosedWebhook)) {
		t.Error("Expected sprint webhook to be detected")
	}
	if IsSprintWebhook([]byte(`{"webhookEvent":"jira:issue_updated","issue":{"key":"JRA-1"}}`)) {
		t.Error("Expected issue webhook not to be detected as a sprint webhook")
	}
	if IsSprintWebhook([]byte(`{"sprintId": 5}`)) {
		t.Error("Expected plain request not to be detected as a sprint webhook")
	}
}

func TestGetEventTypeFromWebhookEvent(t *testing.T) {
	cases := map[string]string{
		"sprint_started":     "started",
		"sprint_closed":      "closed",
		"jira:issue_updated": "issue_updated",
		"custom":             "custom",
	}
	for in, want := range cases {
		if got := getEventTypeFromWebhookEvent(in); got != want {
			t.Errorf("getEventTypeFromWebhookEvent(%q) = %q, want %q", in, got, want)
		}
	}
}
