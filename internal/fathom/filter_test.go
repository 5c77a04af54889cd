package fathom

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuannvm/sprint-report/internal/models"
)

func TestFilterMeetings(t *testing.T) {
	meetings := []models.Meeting{
		{ID: "1", Title: "Lunch"},
		{ID: "2", Title: "PLATFORM standup"},
		{ID: "3", Title: "1:1"},
		{ID: "4", Title: "Sprint Review - Platform"},
	}

	got := FilterMeetings(meetings, []string{" platform ", ""})
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"2", "4", "1", "3"}, ids)
	assert.Equal(t, models.ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, models.ConfidenceLow, got[3].Confidence)
	assert.Empty(t, meetings[0].Confidence, "input is not modified")

	assert.Len(t, Relevant(got), 2)
}

func TestFilterMeetingsWithoutTermsKeepsAll(t *testing.T) {
	got := FilterMeetings([]models.Meeting{{ID: "1", Title: "Anything"}}, nil)
	assert.Equal(t, models.ConfidenceHigh, got[0].Confidence)
	assert.Len(t, Relevant(got), 1)
}
