package domain

import "time"

// ActivityType names an entry in the recent activity feed.
type ActivityType string

const (
	ActivityTaskCreated       ActivityType = "task-created"
	ActivityTaskStatusChanged ActivityType = "task-status-changed"
)

// Activity records a successful task mutation for the dashboard feed.
type Activity struct {
	Type     ActivityType `json:"type"`
	TaskID   int64        `json:"taskId"`
	Title    string       `json:"title,omitempty"`
	ActorID  int64        `json:"actorId,omitempty"`
	Status   Status       `json:"status"`
	Previous Status       `json:"previous,omitempty"`
	At       time.Time    `json:"at"`
}
