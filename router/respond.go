package router

import (
	"regexp"
	"strings"
	"time"
)

// RoutedResponse is the uniform envelope returned for every request, success
// or failure. Text is always non-empty plain text.
type RoutedResponse struct {
	OK           bool           `json:"ok"`
	Status       string         `json:"status"`
	Query        string         `json:"query"`
	Text         string         `json:"text"`
	TextMarkdown string         `json:"text_markdown,omitempty"`
	Kind         string         `json:"kind"`
	Intent       Intent         `json:"intent"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Normalize folds a dispatch outcome into the response envelope. It never
// fails: a blank summary gets a status-derived fallback so Text stays usable.
func Normalize(query string, intent Intent, result ActionResult, at time.Time) RoutedResponse {
	markdown := strings.TrimSpace(result.Summary)
	if markdown == "" {
		if result.Success {
			markdown = "Done."
		} else {
			markdown = "Something went wrong handling that request."
		}
	}
	status := result.Status
	if status == "" {
		if result.Success {
			status = "ok"
		} else {
			status = "error"
		}
	}
	return RoutedResponse{
		OK:           result.Success,
		Status:       status,
		Query:        query,
		Text:         stripMarkdown(markdown),
		TextMarkdown: markdown,
		Kind:         string(intent.Kind),
		Intent:       intent,
		Details:      result.Details,
		Timestamp:    at.UTC(),
	}
}

var (
	boldRe     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	emphasisRe = regexp.MustCompile(`(^|[\s(])[*_]([^*_\n]+)[*_]`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	codeRe     = regexp.MustCompile("`([^`]*)`")
)

// stripMarkdown flattens common LLM markdown into readable plain text. It is
// intentionally lossy: structure markers go, content stays.
func stripMarkdown(s string) string {
	s = boldRe.ReplaceAllString(s, "$1")
	s = emphasisRe.ReplaceAllString(s, "$1$2")
	s = headingRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "- ")
	s = numberedRe.ReplaceAllString(s, "")
	s = codeRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
