package domain

// Fallback labels used when a reference cannot be shown by name.
const (
	LabelUnassigned     = "Unassigned"
	LabelUnknownUser    = "Unknown User"
	LabelNoProject      = "No Project"
	LabelUnknownProject = "Unknown Project"
)

// UserIndex maps user ids to users for a single fetched collection.
type UserIndex map[int64]User

// NewUserIndex indexes users by id. A nil or empty slice yields an empty index,
// which resolves every present reference to LabelUnknownUser. When ids repeat
// the first record wins.
func NewUserIndex(users []User) UserIndex {
	idx := make(UserIndex, len(users))
	for _, u := range users {
		if _, dup := idx[u.ID]; !dup {
			idx[u.ID] = u
		}
	}
	return idx
}

// AssigneeLabel resolves an assignee reference to a display label. It never
// returns an empty string.
func (idx UserIndex) AssigneeLabel(id *int64) string {
	if id == nil {
		return LabelUnassigned
	}
	u, ok := idx[*id]
	if !ok {
		return LabelUnknownUser
	}
	// A record without either name part would otherwise render blank.
	if u.FirstName == "" && u.LastName == "" {
		return LabelUnknownUser
	}
	return u.FullName()
}

// ProjectIndex maps project ids to projects for a single fetched collection.
type ProjectIndex map[int64]Project

// NewProjectIndex indexes projects by id.
func NewProjectIndex(projects []Project) ProjectIndex {
	idx := make(ProjectIndex, len(projects))
	for _, p := range projects {
		if _, dup := idx[p.ID]; !dup {
			idx[p.ID] = p
		}
	}
	return idx
}

// ProjectLabel resolves a project reference to a display label. It never
// returns an empty string.
func (idx ProjectIndex) ProjectLabel(id *int64) string {
	if id == nil {
		return LabelNoProject
	}
	p, ok := idx[*id]
	if !ok || p.Name == "" {
		return LabelUnknownProject
	}
	return p.Name
}
