package domain

import "time"

// User is a person tasks can be assigned to. Read only for this service.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName is the name shown on task cards.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// ProjectStatus is the state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is one of the known project statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectPaused, ProjectCancelled:
		return true
	default:
		return false
	}
}

// Project groups tasks. Read only for this service.
type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	Description string        `json:"description,omitempty"`
	OwnerID     *int64        `json:"ownerId"`
	CreatedAt   time.Time     `json:"createdAt"`
}
