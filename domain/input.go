package domain

import (
	"errors"
	"strings"
	"time"
)

// WireTimeLayout is the canonical timestamp encoding sent to the entity store:
// UTC with millisecond precision.
const WireTimeLayout = "2006-01-02T15:04:05.000Z"

// FormatWireTime encodes t with WireTimeLayout. A nil time encodes as nil.
func FormatWireTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(WireTimeLayout)
	return &s
}

// CreateTaskInput carries the fields a user submits when creating a task.
type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	AssigneeID  *int64     `json:"assigneeId"`
	ProjectID   *int64     `json:"projectId"`
	DueDate     *time.Time `json:"dueDate"`
}

// Normalize returns a copy of in with defaults applied and text trimmed.
func (in CreateTaskInput) Normalize() CreateTaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	return in
}

// Validate checks in after normalization. Every failing field is reported;
// use errors.As with *ValidationError to inspect them.
func (in CreateTaskInput) Validate() error {
	n := in.Normalize()
	var errs []error
	if n.Title == "" {
		errs = append(errs, &ValidationError{Field: "title", Message: "is required"})
	}
	if !n.Status.Valid() {
		errs = append(errs, &ValidationError{Field: "status", Message: "must be one of pending, in_progress, completed, cancelled"})
	}
	if !n.Priority.Valid() {
		errs = append(errs, &ValidationError{Field: "priority", Message: "must be one of low, medium, high, urgent"})
	}
	return errors.Join(errs...)
}

// NewTask is the creation payload sent to the entity store.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	AssigneeID  *int64   `json:"assigneeId"`
	ProjectID   *int64   `json:"projectId"`
	DueDate     *string  `json:"dueDate"`
}

// Payload converts the normalized input to its wire form.
func (in CreateTaskInput) Payload() NewTask {
	n := in.Normalize()
	return NewTask{
		Title:       n.Title,
		Description: n.Description,
		Status:      n.Status,
		Priority:    n.Priority,
		AssigneeID:  n.AssigneeID,
		ProjectID:   n.ProjectID,
		DueDate:     FormatWireTime(n.DueDate),
	}
}

// StatusUpdate is the partial payload for a status change.
type StatusUpdate struct {
	Status Status `json:"status"`
}
