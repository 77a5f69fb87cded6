package compliance

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a control result carries a status other
// than passed, failed or skipped.
var ErrUnknownStatus = errors.New("unknown control status")

// Status is the outcome of an executed control.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is one of the three recognised statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ParseStatus converts a case-insensitive status string.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// ControlResult is the outcome of one executed control.
type ControlResult struct {
	ControlID string `json:"control_id"`
	Status    Status `json:"status"`
}

// validateResults rejects the whole batch on the first unrecognised status.
func validateResults(results []ControlResult) error {
	for i, r := range results {
		if !r.Status.Valid() {
			return fmt.Errorf("%w: result %d (control %q) has status %q", ErrUnknownStatus, i, r.ControlID, r.Status)
		}
	}
	return nil
}
