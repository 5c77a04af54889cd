package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/sprint-report/internal/jira"
	log "github.com/tuannvm/sprint-report/internal/logging"
	"github.com/tuannvm/sprint-report/internal/models"
)

// ErrNotReportTrigger is returned for sprint webhooks that should not produce a report.
var ErrNotReportTrigger = errors.New("sprint event does not trigger a report")

// ExtractReportRequest extracts a report request from a message. Parts may
// carry a request object ({"sprintId": 812}) or a Jira sprint webhook payload,
// as structured data or as JSON text.
func ExtractReportRequest(message protocol.Message) (models.ReportRequest, error) {
	if len(message.Parts) == 0 {
		return models.ReportRequest{}, fmt.Errorf("message has no parts")
	}

	var lastErr error
	for _, part := range message.Parts {
		raw, ok := partPayload(part)
		if !ok {
			continue
		}
		req, err := RequestFromJSON(raw)
		if err == nil {
			return req, nil
		}
		if errors.Is(err, ErrNotReportTrigger) {
			return models.ReportRequest{}, err
		}
		lastErr = err
	}

	if lastErr != nil {
		return models.ReportRequest{}, fmt.Errorf("could not extract report request from message: %w", lastErr)
	}
	return models.ReportRequest{}, fmt.Errorf("could not extract report request from message")
}

// partPayload returns the JSON carried by a text or data part.
func partPayload(part protocol.Part) ([]byte, bool) {
	switch p := part.(type) {
	case *protocol.DataPart:
		if p != nil {
			return marshalData(p.Data)
		}
	case protocol.DataPart:
		return marshalData(p.Data)
	case *protocol.TextPart:
		if p != nil {
			return textPayload(p.Text)
		}
	}
	return nil, false
}

func marshalData(data any) ([]byte, bool) {
	if data == nil {
		return nil, false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Warnf("Failed to marshal DataPart.Data: %v", err)
		return nil, false
	}
	return raw, true
}

func textPayload(text string) ([]byte, bool) {
	if text == "" {
		return nil, false
	}
	if json.Valid([]byte(text)) {
		return []byte(text), true
	}
	// Free text with an embedded JSON object.
	extracted, err := ExtractJSON(text)
	if err != nil {
		return nil, false
	}
	return []byte(extracted), true
}

// RequestFromJSON decodes a report request or a sprint webhook payload.
func RequestFromJSON(raw []byte) (models.ReportRequest, error) {
	if jira.IsSprintWebhook(raw) {
		event, err := jira.TransformSprintWebhook(raw)
		if err != nil {
			return models.ReportRequest{}, fmt.Errorf("invalid sprint webhook: %w", err)
		}
		if !event.ShouldGenerateReport() {
			return models.ReportRequest{}, fmt.Errorf("%w: %s", ErrNotReportTrigger, event.WebhookName)
		}
		return RequestFromSprintEvent(event), nil
	}

	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return models.ReportRequest{}, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return ExtractFromMap(data)
}

// ExtractFromMap builds a report request from loosely named keys.
func ExtractFromMap(data map[string]any) (models.ReportRequest, error) {
	var req models.ReportRequest
	id, ok := GetIntValue(data, "sprintId", "sprint_id", "sprint")
	if !ok {
		return req, fmt.Errorf("no sprint ID found in data")
	}
	req.SprintID = id
	req.BoardID, _ = GetIntValue(data, "boardId", "board_id", "board")
	req.SprintName, _ = GetStringValue(data, "sprintName", "sprint_name", "name")
	req.StartDate, _ = GetStringValue(data, "startDate", "start_date")
	req.EndDate, _ = GetStringValue(data, "endDate", "end_date")
	req.PDF = GetBoolValue(data, "pdf")
	return req, nil
}

// RequestFromSprintEvent turns a closed-sprint event into a report request
// that needs no further metadata lookups.
func RequestFromSprintEvent(event *jira.SprintEvent) models.ReportRequest {
	return models.ReportRequest{
		SprintID:   event.Sprint.ID,
		BoardID:    event.Sprint.BoardID,
		SprintName: event.Sprint.Name,
		StartDate:  event.Sprint.StartDate,
		EndDate:    event.Sprint.EndDate,
	}
}

// ExtractReportResult reads the report result a completed task carries in its status message.
func ExtractReportResult(message *protocol.Message) (*models.ReportResult, error) {
	if message == nil || len(message.Parts) == 0 {
		return nil, fmt.Errorf("message is nil or has no parts")
	}
	for _, part := range message.Parts {
		raw, ok := partPayload(part)
		if !ok {
			continue
		}
		var result models.ReportResult
		if err := json.Unmarshal(raw, &result); err == nil && result.MarkdownPath != "" {
			return &result, nil
		}
	}
	return nil, fmt.Errorf("could not extract report result from message")
}
