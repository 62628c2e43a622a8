package prayer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidStatus is returned for a status that is neither a known marker
// nor a known name.
var ErrInvalidStatus = errors.New("invalid prayer status")

// Status is the follow-up state of a prayer request. It is stored as a
// leading marker in the request cell; a cell without a marker has not been
// followed up yet.
type Status string

const (
	StatusDone         Status = "✅"
	StatusDeclined     Status = "❌"
	StatusUnknown      Status = "❓"
	StatusNotContacted Status = "#️⃣"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusDone, StatusDeclined, StatusUnknown, StatusNotContacted}

var statusNames = map[Status]string{
	StatusDone:         "done",
	StatusDeclined:     "declined",
	StatusUnknown:      "unknown",
	StatusNotContacted: "not-contacted",
}

// ParseStatus accepts either the marker or its name. An empty string is the
// default status.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusNotContacted, nil
	}
	for status, name := range statusNames {
		if s == string(status) || strings.EqualFold(s, name) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) Name() string {
	return statusNames[s]
}

// splitRequest separates the status marker from the request text.
func splitRequest(cell string) (Status, string) {
	cell = strings.TrimSpace(cell)
	for _, status := range Statuses {
		if rest, ok := strings.CutPrefix(cell, string(status)); ok {
			return status, strings.TrimSpace(rest)
		}
	}
	return StatusNotContacted, cell
}

// formatRequest is the inverse of splitRequest. The default status is
// written without a marker so untouched sheets stay as people typed them.
func formatRequest(status Status, text string) string {
	text = strings.TrimSpace(text)
	if status == StatusNotContacted || status == "" {
		return text
	}
	return string(status) + " " + text
}
