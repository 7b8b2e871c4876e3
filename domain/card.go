package domain

import "time"

const dueDateLayout = "Jan 2, 2006"

// CardAction is the single status change a card offers.
type CardAction struct {
	Label  string `json:"label"`
	Target Status `json:"target"`
}

// TaskCard is the render-ready projection of a task.
type TaskCard struct {
	Task
	StatusLabel   string      `json:"statusLabel"`
	AssigneeLabel string      `json:"assigneeLabel"`
	ProjectLabel  string      `json:"projectLabel"`
	IsOverdue     bool        `json:"isOverdue"`
	DueLabel      string      `json:"dueLabel,omitempty"`
	Action        *CardAction `json:"action,omitempty"`
}

// NewTaskCard derives the card for t against the given lookups.
func NewTaskCard(t Task, users UserIndex, projects ProjectIndex, now time.Time) TaskCard {
	card := TaskCard{
		Task:          t,
		StatusLabel:   t.Status.Label(),
		AssigneeLabel: users.AssigneeLabel(t.AssigneeID),
		ProjectLabel:  projects.ProjectLabel(t.ProjectID),
		IsOverdue:     t.Overdue(now),
	}
	if t.DueDate != nil {
		card.DueLabel = "Due " + t.DueDate.Format(dueDateLayout)
		if card.IsOverdue {
			card.DueLabel += " (Overdue)"
		}
	}
	if target, ok := NextStatus(t.Status); ok {
		label, _ := ActionLabel(t.Status)
		card.Action = &CardAction{Label: label, Target: target}
	}
	return card
}

// BuildCards derives cards for every task, in order.
func BuildCards(tasks []Task, users UserIndex, projects ProjectIndex, now time.Time) []TaskCard {
	cards := make([]TaskCard, 0, len(tasks))
	for _, t := range tasks {
		cards = append(cards, NewTaskCard(t, users, projects, now))
	}
	return cards
}
