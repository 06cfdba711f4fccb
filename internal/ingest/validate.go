package ingest

import (
	"fmt"
	"strings"
)

const (
	maxTitleLength = 1024
	maxTextLength  = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateCandidate checks that a fetched candidate is storable: title and
// text present and within length bounds. Invalid candidates are skipped by
// the coordinator, never fatal to a cycle.
func ValidateCandidate(c Candidate) error {
	errs := make(map[string]string)

	title := strings.TrimSpace(c.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	text := strings.TrimSpace(c.Text)
	if text == "" {
		errs["text"] = "text is required and must not be empty"
	} else if len(text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d characters", maxTextLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
