package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArray  = regexp.MustCompile(`(?s)\[.*\]`)
)

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// ExtractJSON extracts JSON content from a text string
// It looks for content between { and } or [ and ] brackets
func ExtractJSON(text string) (string, error) {
	if m := jsonObject.FindString(text); m != "" && json.Valid([]byte(m)) {
		return m, nil
	}
	if m := jsonArray.FindString(text); m != "" && json.Valid([]byte(m)) {
		return m, nil
	}
	return "", fmt.Errorf("no valid JSON found in text")
}

// GetStringValue retrieves a string value from a map using multiple possible keys
// It tries each key in order and returns the first non-empty value found
func GetStringValue(data map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if strVal, ok := val.(string); ok && strVal != "" {
				return strVal, true
			}
		}
	}
	return "", false
}

// GetIntValue retrieves a positive integer stored as a JSON number or a numeric string.
func GetIntValue(data map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := data[key].(type) {
		case float64:
			if v > 0 && v == float64(int(v)) {
				return int(v), true
			}
		case json.Number:
			if n, err := strconv.Atoi(v.String()); err == nil && n > 0 {
				return n, true
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// GetBoolValue retrieves a boolean stored as a JSON bool or a string.
func GetBoolValue(data map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := data[key].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

// ReturnJSONError writes a JSON error response with the given status code and message
func ReturnJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]any{
		"error": map[string]any{
			"code":    statusCode,
			"message": message,
		},
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		_, _ = fmt.Fprintf(w, "Error: %s", message)
	}
}

// ReturnJSON writes v as a JSON response.
func ReturnJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
