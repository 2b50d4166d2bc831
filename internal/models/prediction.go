package models

import (
	"fmt"
	"strings"
)

// Theme is the persisted UI color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// DefaultTheme is used when no valid preference has been stored
const DefaultTheme = ThemeDark

// ParseTheme converts a stored or user supplied value into a Theme
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

// Opposite returns the other theme
func (t Theme) Opposite() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// SubmissionRequest is the body sent to the remote classifier
type SubmissionRequest struct {
	Text string `json:"text" binding:"required"`
}

// PredictionResult is a normalized classifier answer.
// Probability is the mass assigned to the AI-generated class and is always set.
type PredictionResult struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// HistoryEntry is one saved interaction.
// The JSON field names are the stored format; keep them stable.
type HistoryEntry struct {
	Text      string `json:"text"`
	Label     string `json:"label"`
	Timestamp int64  `json:"ts"` // epoch milliseconds
}
