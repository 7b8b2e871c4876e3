package domain

import "time"

// Task is a work item as stored by the entity store.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  *int64     `json:"assigneeId"`
	ProjectID   *int64     `json:"projectId"`
	DueDate     *time.Time `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// IsOverdue reports whether a task with the given due date and status is past
// its deadline at now. Only completed tasks are exempt; cancelled tasks with a
// past due date still count as overdue.
func IsOverdue(dueDate *time.Time, status Status, now time.Time) bool {
	if dueDate == nil {
		return false
	}
	return dueDate.Before(now) && status != StatusCompleted
}

// Overdue is IsOverdue applied to t.
func (t Task) Overdue(now time.Time) bool {
	return IsOverdue(t.DueDate, t.Status, now)
}

// FindTask returns the task with the given id.
func FindTask(tasks []Task, id int64) (Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
