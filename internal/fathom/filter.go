package fathom

import (
	"sort"
	"strings"

	"github.com/tuannvm/sprint-report/internal/models"
)

// FilterMeetings tags each meeting by whether its title mentions one of the
// search terms and orders HIGH confidence meetings first. Relative order
// within a confidence level is preserved.
func FilterMeetings(meetings []models.Meeting, terms []string) []models.Meeting {
	needles := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			needles = append(needles, t)
		}
	}

	out := make([]models.Meeting, len(meetings))
	for i, m := range meetings {
		m.Confidence = models.ConfidenceLow
		if len(needles) == 0 || titleMatches(m.Title, needles) {
			m.Confidence = models.ConfidenceHigh
		}
		out[i] = m
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence == models.ConfidenceHigh && out[j].Confidence != models.ConfidenceHigh
	})
	return out
}

// Relevant returns only the HIGH confidence meetings.
func Relevant(meetings []models.Meeting) []models.Meeting {
	var out []models.Meeting
	for _, m := range meetings {
		if m.Confidence == models.ConfidenceHigh {
			out = append(out, m)
		}
	}
	return out
}

func titleMatches(title string, needles []string) bool {
	title = strings.ToLower(title)
	for _, n := range needles {
		if strings.Contains(title, n) {
			return true
		}
	}
	return false
}
