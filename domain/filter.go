package domain

import "fmt"

// Filter selects which tasks a board shows.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterAssigned Filter = "assigned"
)

// Valid reports whether f is a known filter mode.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterAssigned:
		return true
	default:
		return false
	}
}

// ParseFilter converts a query value to a Filter. An empty value selects
// FilterAll.
func ParseFilter(v string) (Filter, error) {
	if v == "" {
		return FilterAll, nil
	}
	f := Filter(v)
	if !f.Valid() {
		return "", fmt.Errorf("unknown filter %q", v)
	}
	return f, nil
}

// FilterTasks projects tasks through f for the given user. The input slice is
// not modified and relative order is preserved.
func FilterTasks(tasks []Task, f Filter, currentUserID int64) []Task {
	switch f {
	case FilterAssigned:
		out := make([]Task, 0, len(tasks))
		for _, t := range tasks {
			if assignedTo(t, currentUserID) {
				out = append(out, t)
			}
		}
		return out
	case FilterAll:
		return append([]Task(nil), tasks...)
	default:
		return append([]Task(nil), tasks...)
	}
}

// CountAssigned counts the tasks assigned to the given user.
func CountAssigned(tasks []Task, currentUserID int64) int {
	n := 0
	for _, t := range tasks {
		if assignedTo(t, currentUserID) {
			n++
		}
	}
	return n
}

func assignedTo(t Task, userID int64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}
