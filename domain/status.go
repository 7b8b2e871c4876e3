package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Label is the display text of the status, e.g. "in progress".
func (s Status) Label() string {
	return strings.Replace(string(s), "_", " ", 1)
}

// ParseStatus converts a wire value to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// NextStatus returns the single forward transition offered to a user for the
// given status. Completed, cancelled and unknown statuses offer none.
func NextStatus(current Status) (Status, bool) {
	switch current {
	case StatusPending:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusCompleted, true
	case StatusCompleted, StatusCancelled:
		return "", false
	default:
		return "", false
	}
}

// ActionLabel names the button that performs NextStatus.
func ActionLabel(current Status) (string, bool) {
	switch current {
	case StatusPending:
		return "Start", true
	case StatusInProgress:
		return "Complete", true
	case StatusCompleted, StatusCancelled:
		return "", false
	default:
		return "", false
	}
}
