package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"taskboard/domain"
)

// Notice is a user-visible toast.
type Notice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Destructive bool   `json:"destructive,omitempty"`
}

// ActionState tracks one kind of user action so the view can disable
// controls and show the outcome.
type ActionState struct {
	InFlight bool    `json:"inFlight"`
	Err      error   `json:"-"`
	Error    string  `json:"error,omitempty"`
	Notice   *Notice `json:"notice,omitempty"`
	// Navigate is set when the view should move to another route.
	Navigate string  `json:"navigate,omitempty"`
}

// FetchState reports how a collection was obtained for the last board.
type FetchState struct {
	// Stale is set when a refetch failed and the previous value was used.
	Stale bool   `json:"stale"`
	Error string `json:"error,omitempty"`
}

// Counts feeds the filter buttons.
type Counts struct {
	All      int `json:"all"`
	Assigned int `json:"assigned"`
}

// Board is everything a view needs to render the task list.
type Board struct {
	UserID    int64             `json:"userId"`
	Filter    domain.Filter     `json:"filter"`
	Counts    Counts            `json:"counts"`
	Cards     []domain.TaskCard `json:"cards"`
	Tasks     FetchState        `json:"tasks"`
	Users     FetchState        `json:"users"`
	Projects  FetchState        `json:"projects"`
	Create    ActionState       `json:"create"`
	Advance   ActionState       `json:"advance"`
	Advancing []int64           `json:"advancing"`
}

// Session is one mounted board view. Results of operations that finish after
// Close are dropped instead of being applied.
type Session struct {
	model  *Model
	userID int64

	mu        sync.Mutex
	closed    bool
	filter    domain.Filter
	creating  int
	create    ActionState
	advance   ActionState
	advancing map[int64]struct{}
	fetch     map[string]FetchState
}

func newSession(m *Model, userID int64) *Session {
	return &Session{
		model:     m,
		userID:    userID,
		filter:    domain.FilterAll,
		advancing: map[int64]struct{}{},
		fetch:     map[string]FetchState{},
	}
}

// Filter returns the selected filter mode.
func (s *Session) Filter() domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter selects a filter mode.
func (s *Session) SetFilter(f domain.Filter) error {
	if !f.Valid() {
		return &domain.ValidationError{Field: "filter", Message: "must be one of all, assigned"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.filter = f
	return nil
}

// Close tears the view down.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Board fetches the three collections independently and derives the cards
// for the current filter. Users and projects that fail to load leave their
// references on the fallback labels; tasks that fail to load with nothing
// cached fail the board.
func (s *Session) Board(ctx context.Context) (Board, error) {
	m := s.model
	ctx, span := m.tracer.Start(ctx, "workflow.Board", trace.WithAttributes(attribute.Int64("user.id", s.userID)))
	defer span.End()

	if s.Closed() {
		return Board{}, ErrSessionClosed
	}

	var (
		tasks     []domain.Task
		users     []domain.User
		projects  []domain.Project
		taskErr   error
		taskFS    FetchState
		userFS    FetchState
		projectFS FetchState
		g         errgroup.Group
	)
	g.Go(func() error {
		snap, err := m.Tasks(ctx)
		tasks, taskFS, taskErr = snap.Value, fetchState(snap.Stale, snap.Err, err), err
		return nil
	})
	g.Go(func() error {
		snap, err := m.Users(ctx)
		users, userFS = snap.Value, fetchState(snap.Stale, snap.Err, err)
		if err != nil {
			m.logger.WithError(err).Warn("users unavailable, using fallback labels")
		}
		return nil
	})
	g.Go(func() error {
		snap, err := m.Projects(ctx)
		projects, projectFS = snap.Value, fetchState(snap.Stale, snap.Err, err)
		if err != nil {
			m.logger.WithError(err).Warn("projects unavailable, using fallback labels")
		}
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Board{}, ErrSessionClosed
	}
	s.fetch[KeyTasks], s.fetch[KeyUsers], s.fetch[KeyProjects] = taskFS, userFS, projectFS
	if taskErr != nil {
		err := fmt.Errorf("load tasks: %w", taskErr)
		fail(span, err)
		return Board{}, err
	}

	visible := domain.FilterTasks(tasks, s.filter, s.userID)
	board := Board{
		UserID:    s.userID,
		Filter:    s.filter,
		Counts:    Counts{All: len(tasks), Assigned: domain.CountAssigned(tasks, s.userID)},
		Cards:     domain.BuildCards(visible, domain.NewUserIndex(users), domain.NewProjectIndex(projects), m.now()),
		Tasks:     taskFS,
		Users:     userFS,
		Projects:  projectFS,
		Create:    s.create,
		Advance:   s.advance,
		Advancing: s.advancingIDs(),
	}
	span.SetAttributes(attribute.Int("board.cards", len(board.Cards)))
	return board, nil
}

// CreateTask validates in and submits it. Nothing is inserted locally; on
// success the tasks collection is invalidated and the view is sent to
// TasksRoute.
func (s *Session) CreateTask(ctx context.Context, in domain.CreateTaskInput) (domain.Task, error) {
	m := s.model
	ctx, span := m.tracer.Start(ctx, "workflow.CreateTask", trace.WithAttributes(attribute.Int64("user.id", s.userID)))
	defer span.End()

	if err := in.Validate(); err != nil {
		fail(span, err)
		if !s.apply(func() { s.create = ActionState{InFlight: s.creating > 0, Err: err, Error: err.Error()} }) {
			return domain.Task{}, ErrSessionClosed
		}
		return domain.Task{}, err
	}
	if !s.apply(func() {
		s.creating++
		s.create = ActionState{InFlight: true}
	}) {
		return domain.Task{}, ErrSessionClosed
	}

	created, err := m.createTask(ctx, in, s.userID)

	var state ActionState
	if err != nil {
		fail(span, err)
		state = ActionState{Err: err, Error: err.Error(), Notice: &Notice{Title: "Error", Description: "Failed to create task", Destructive: true}}
	} else {
		span.SetAttributes(attribute.Int64("task.id", created.ID))
		state = ActionState{Notice: &Notice{Title: "Success", Description: "Task created successfully"}, Navigate: TasksRoute}
	}
	if !s.apply(func() {
		s.creating--
		state.InFlight = s.creating > 0
		s.create = state
	}) {
		return domain.Task{}, ErrSessionClosed
	}
	if err != nil {
		return domain.Task{}, err
	}
	return created, nil
}

// AdvanceStatus applies the offered transition for task id. The current
// status is read from the latest fetched tasks, never from a card the view
// rendered earlier, and a second advance on the same id is refused while
// the first is in flight. Failures are not retried.
func (s *Session) AdvanceStatus(ctx context.Context, id int64) (domain.Task, error) {
	m := s.model
	ctx, span := m.tracer.Start(ctx, "workflow.AdvanceStatus", trace.WithAttributes(
		attribute.Int64("user.id", s.userID),
		attribute.Int64("task.id", id),
	))
	defer span.End()

	if s.Closed() {
		return domain.Task{}, ErrSessionClosed
	}

	token, ok, err := m.guard.Acquire(ctx, id)
	if err != nil {
		err = fmt.Errorf("acquire advance guard: %w", err)
	} else if !ok {
		err = ErrTransitionInFlight
	}
	if err != nil {
		fail(span, err)
		return domain.Task{}, s.advanceFailed(err)
	}
	defer func() {
		if err := m.guard.Release(context.WithoutCancel(ctx), id, token); err != nil {
			m.logger.WithError(err).WithField("task", id).Warn("advance guard not released")
		}
	}()

	current, target, err := s.resolveTransition(ctx, id)
	if err != nil {
		fail(span, err)
		return domain.Task{}, s.advanceFailed(err)
	}
	span.SetAttributes(attribute.String("task.from", string(current)), attribute.String("task.to", string(target)))

	if !s.apply(func() {
		s.advancing[id] = struct{}{}
		s.advance = ActionState{InFlight: true}
	}) {
		return domain.Task{}, ErrSessionClosed
	}

	updated, err := m.updateStatus(ctx, id, current, target, s.userID)

	var state ActionState
	if err != nil {
		fail(span, err)
		state = advanceFailure(err)
	}
	if !s.apply(func() {
		delete(s.advancing, id)
		state.InFlight = len(s.advancing) > 0
		s.advance = state
	}) {
		return domain.Task{}, ErrSessionClosed
	}
	if err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// advanceFailed records err as the advance outcome when the request never
// reached the store, and returns it.
func (s *Session) advanceFailed(err error) error {
	state := advanceFailure(err)
	if !s.apply(func() {
		state.InFlight = len(s.advancing) > 0
		s.advance = state
	}) {
		return ErrSessionClosed
	}
	return err
}

func advanceFailure(err error) ActionState {
	return ActionState{Err: err, Error: err.Error(), Notice: &Notice{Title: "Error", Description: "Failed to update task status", Destructive: true}}
}

// resolveTransition refuses to act on a stale task list: the status it holds
// may already have been moved on by someone else.
func (s *Session) resolveTransition(ctx context.Context, id int64) (domain.Status, domain.Status, error) {
	snap, err := s.model.Tasks(ctx)
	if err != nil {
		return "", "", fmt.Errorf("load tasks: %w", err)
	}
	if snap.Stale {
		return "", "", fmt.Errorf("load tasks: %w", snap.Err)
	}
	task, ok := domain.FindTask(snap.Value, id)
	if !ok {
		return "", "", fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	target, ok := domain.NextStatus(task.Status)
	if !ok {
		return "", "", fmt.Errorf("%w from %s", ErrNoTransition, task.Status)
	}
	return task.Status, target, nil
}

// apply runs fn under the session lock unless the session is closed.
func (s *Session) apply(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Session) advancingIDs() []int64 {
	ids := make([]int64, 0, len(s.advancing))
	for id := range s.advancing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func fetchState(stale bool, staleErr, err error) FetchState {
	switch {
	case err != nil:
		return FetchState{Error: err.Error()}
	case stale && staleErr != nil:
		return FetchState{Stale: true, Error: staleErr.Error()}
	case stale:
		return FetchState{Stale: true}
	default:
		return FetchState{}
	}
}

// IsConflict reports errors that mean the request cannot apply to the
// current task state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNoTransition) || errors.Is(err, ErrTransitionInFlight)
}
