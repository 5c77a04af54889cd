package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/sprint-report/internal/models"
)

// SprintWebhookPayload represents the Jira Software sprint webhook payload structure
type SprintWebhookPayload struct {
	Timestamp    int64          `json:"timestamp"`
	WebhookEvent string         `json:"webhookEvent"`
	Sprint       map[string]any `json:"sprint"`
	OldValue     map[string]any `json:"oldValue,omitempty"` // present on sprint_updated
	User         *JiraUser      `json:"user,omitempty"`
}

// JiraUser represents a Jira user in the webhook
type JiraUser struct {
	Self         string            `json:"self"`
	Name         string            `json:"name"`
	Key          string            `json:"key"`
	EmailAddress string            `json:"emailAddress"`
	AvatarURLs   map[string]string `json:"avatarUrls"`
	DisplayName  string            `json:"displayName"`
	Active       interface{}       `json:"active"` // Can be string "true" or boolean true
}

// SprintEvent is the application's internal form of a sprint webhook
type SprintEvent struct {
	Event       string            `json:"event"` // "created", "started", "closed", "updated", "deleted"
	Sprint      models.Sprint     `json:"sprint"`
	UserName    string            `json:"userName,omitempty"`
	WebhookName string            `json:"webhookName"`
	Timestamp   string            `json:"timestamp"`
	Changes     map[string]string `json:"changes,omitempty"` // fields that differ from oldValue
}

// ShouldGenerateReport reports whether the event marks the end of a sprint.
func (e *SprintEvent) ShouldGenerateReport() bool {
	return e.Event == "closed"
}

// IsSprintWebhook reports whether payload looks like a sprint webhook.
func IsSprintWebhook(payload []byte) bool {
	var probe struct {
		WebhookEvent string          `json:"webhookEvent"`
		Sprint       json.RawMessage `json:"sprint"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return strings.HasPrefix(probe.WebhookEvent, "sprint_") && len(probe.Sprint) > 0
}

// TransformSprintWebhook converts a Jira sprint webhook payload to a SprintEvent
func TransformSprintWebhook(payload []byte) (*SprintEvent, error) {
	var hook SprintWebhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, err
	}
	if hook.Sprint == nil {
		return nil, fmt.Errorf("webhook %q carries no sprint", hook.WebhookEvent)
	}

	sprint, problems := mapSprint(hook.Sprint, 0)
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid sprint in webhook: %s", strings.Join(problems, "; "))
	}

	event := &SprintEvent{
		Event:       getEventTypeFromWebhookEvent(hook.WebhookEvent),
		Sprint:      sprint,
		WebhookName: hook.WebhookEvent,
	}
	if hook.User != nil {
		event.UserName = hook.User.Name
		if event.UserName == "" {
			event.UserName = hook.User.DisplayName
		}
	}

	// Format timestamp
	if hook.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(hook.Timestamp).UTC().Format(time.RFC3339)
	} else {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	// Extract changes if present
	for field, old := range hook.OldValue {
		now, ok := hook.Sprint[field]
		if !ok || fmt.Sprint(now) == fmt.Sprint(old) {
			continue
		}
		if event.Changes == nil {
			event.Changes = make(map[string]string)
		}
		event.Changes[field] = fmt.Sprint(now)
	}

	return event, nil
}

// getEventTypeFromWebhookEvent extracts the simplified event type from the full webhook event
func getEventTypeFromWebhookEvent(webhookEvent string) string {
	switch webhookEvent {
	case "sprint_created":
		return "created"
	case "sprint_started":
		return "started"
	case "sprint_closed":
		return "closed"
	case "sprint_updated":
		return "updated"
	case "sprint_deleted":
		return "deleted"
	default:
		// Extract event name after colon if present
		if parts := strings.Split(webhookEvent, ":"); len(parts) > 1 {
			return parts[1]
		}
		return webhookEvent
	}
}
