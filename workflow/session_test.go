package workflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

func TestShipReleaseScenario(t *testing.T) {
	store := &memStore{users: []domain.User{{ID: 1, FirstName: "Ada", LastName: "Lovelace"}}}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()

	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("initial board: %v", err)
	}
	if len(board.Cards) != 0 {
		t.Fatalf("expected empty board, got %d cards", len(board.Cards))
	}

	created, err := s.CreateTask(ctx, domain.CreateTaskInput{Title: "Ship release", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := c.Stats().Invalidations; got != 1 {
		t.Fatalf("expected tasks key invalidated once, got %d", got)
	}

	board, err = s.Board(ctx)
	if err != nil {
		t.Fatalf("board after create: %v", err)
	}
	if store.taskFetches != 2 {
		t.Fatalf("expected a refetch after create, fetches=%d", store.taskFetches)
	}
	if len(board.Cards) != 1 {
		t.Fatalf("expected one card, got %d", len(board.Cards))
	}
	card := board.Cards[0]
	if card.ID != created.ID || card.Title != "Ship release" {
		t.Fatalf("unexpected card %+v", card)
	}
	if card.Status != domain.StatusPending || card.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected status/priority %s/%s", card.Status, card.Priority)
	}
	if card.AssigneeLabel != domain.LabelUnassigned || card.ProjectLabel != domain.LabelNoProject {
		t.Fatalf("unexpected labels %q %q", card.AssigneeLabel, card.ProjectLabel)
	}
	if card.DueDate != nil || card.IsOverdue {
		t.Fatalf("expected no deadline, got %+v", card)
	}
	if board.Create.Notice == nil || board.Create.Notice.Description != "Task created successfully" {
		t.Fatalf("missing success notice: %+v", board.Create)
	}
	if board.Create.Navigate != TasksRoute || board.Create.InFlight {
		t.Fatalf("unexpected create state %+v", board.Create)
	}
}

func TestCreateTaskValidationDoesNotContactStore(t *testing.T) {
	store := &memStore{}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)

	_, err := s.CreateTask(context.Background(), domain.CreateTaskInput{Title: "   "})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	if store.creates != 0 {
		t.Fatalf("store contacted %d times", store.creates)
	}
	if c.Stats().Invalidations != 0 {
		t.Fatalf("cache invalidated on validation failure")
	}
}

func TestCreateTaskFailureLeavesStateUnchanged(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 1, Title: "existing", Status: domain.StatusPending, Priority: domain.PriorityLow}}}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()
	if _, err := s.Board(ctx); err != nil {
		t.Fatalf("board: %v", err)
	}

	store.createErr = &domain.RequestError{Op: "create task", StatusCode: http.StatusInternalServerError}
	_, err := s.CreateTask(ctx, domain.CreateTaskInput{Title: "new"})
	var reqErr *domain.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected request error, got %v", err)
	}
	if c.Stats().Invalidations != 0 {
		t.Fatalf("failed create must not invalidate")
	}

	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board.Cards) != 1 {
		t.Fatalf("expected no local insert, got %d cards", len(board.Cards))
	}
	n := board.Create.Notice
	if n == nil || n.Title != "Error" || n.Description != "Failed to create task" || !n.Destructive {
		t.Fatalf("unexpected notice %+v", n)
	}
	if board.Create.Navigate != "" || board.Create.Error == "" {
		t.Fatalf("unexpected create state %+v", board.Create)
	}
}

func TestAdvanceStatusFollowsOfferedTransitions(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 7, Title: "x", Status: domain.StatusPending, Priority: domain.PriorityLow}}}
	m, _, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()

	for _, want := range []domain.Status{domain.StatusInProgress, domain.StatusCompleted} {
		got, err := s.AdvanceStatus(ctx, 7)
		if err != nil {
			t.Fatalf("advance to %s: %v", want, err)
		}
		if got.Status != want {
			t.Fatalf("expected %s, got %s", want, got.Status)
		}
	}
	if _, err := s.AdvanceStatus(ctx, 7); !errors.Is(err, ErrNoTransition) {
		t.Fatalf("expected no transition from completed, got %v", err)
	}
	if store.updates != 2 {
		t.Fatalf("expected two updates, got %d", store.updates)
	}
}

func TestAdvanceStatusRejectsTerminalStatuses(t *testing.T) {
	store := &memStore{tasks: []domain.Task{
		{ID: 1, Status: domain.StatusCompleted},
		{ID: 2, Status: domain.StatusCancelled},
	}}
	m, _, _ := newTestModel(t, store)
	s := m.NewSession(1)
	for _, id := range []int64{1, 2} {
		if _, err := s.AdvanceStatus(context.Background(), id); !errors.Is(err, ErrNoTransition) {
			t.Fatalf("task %d: expected ErrNoTransition, got %v", id, err)
		}
	}
	if store.updates != 0 {
		t.Fatalf("store updated %d times", store.updates)
	}
}

func TestAdvanceStatusUnknownTask(t *testing.T) {
	m, _, _ := newTestModel(t, &memStore{})
	if _, err := m.NewSession(1).AdvanceStatus(context.Background(), 99); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestAdvanceStatusRefusalIsRecorded(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 1, Status: domain.StatusCompleted}}}
	m, _, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()

	_, err := s.AdvanceStatus(ctx, 1)
	if !errors.Is(err, ErrNoTransition) {
		t.Fatalf("expected ErrNoTransition, got %v", err)
	}
	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Advance.InFlight || board.Advance.Error == "" || !errors.Is(board.Advance.Err, ErrNoTransition) {
		t.Fatalf("refusal not recorded: %+v", board.Advance)
	}
	if n := board.Advance.Notice; n == nil || !n.Destructive || n.Description != "Failed to update task status" {
		t.Fatalf("unexpected notice %+v", n)
	}

	if _, err := s.AdvanceStatus(ctx, 42); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	board, err = s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if !errors.Is(board.Advance.Err, ErrTaskNotFound) {
		t.Fatalf("unknown task not recorded: %+v", board.Advance)
	}
}

func TestAdvanceStatusWhileInFlightIsRefused(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	store := &memStore{tasks: []domain.Task{{ID: 3, Status: domain.StatusPending}}}
	store.beforeUpdate = func(int64) {
		close(started)
		<-release
	}
	m, _, _ := newTestModel(t, store)
	s := m.NewSession(1)
	other := m.NewSession(2)
	ctx := context.Background()

	type result struct {
		task domain.Task
		err  error
	}
	done := make(chan result, 1)
	go func() {
		task, err := s.AdvanceStatus(ctx, 3)
		done <- result{task, err}
	}()
	<-started

	if _, err := s.AdvanceStatus(ctx, 3); !errors.Is(err, ErrTransitionInFlight) {
		t.Fatalf("expected ErrTransitionInFlight, got %v", err)
	}
	if _, err := other.AdvanceStatus(ctx, 3); !errors.Is(err, ErrTransitionInFlight) {
		t.Fatalf("guard must hold across sessions, got %v", err)
	}
	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if !board.Advance.InFlight || len(board.Advancing) != 1 || board.Advancing[0] != 3 {
		t.Fatalf("expected task 3 in flight, got %+v %v", board.Advance, board.Advancing)
	}

	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("first advance: %v", res.err)
	}
	if res.task.Status != domain.StatusInProgress || store.updates != 1 {
		t.Fatalf("unexpected outcome %+v after %d updates", res.task, store.updates)
	}

	store.beforeUpdate = nil
	next, err := s.AdvanceStatus(ctx, 3)
	if err != nil {
		t.Fatalf("follow-up advance: %v", err)
	}
	if next.Status != domain.StatusCompleted {
		t.Fatalf("follow-up advance must start from the refetched status, got %s", next.Status)
	}
}

func TestAdvanceStatusFailureIsReportedWithoutRetry(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 1, Status: domain.StatusPending}}}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)
	store.updateErr = &domain.RequestError{Op: "update task", StatusCode: http.StatusServiceUnavailable}

	if _, err := s.AdvanceStatus(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
	if store.updates != 1 {
		t.Fatalf("expected a single attempt, got %d", store.updates)
	}
	if c.Stats().Invalidations != 0 {
		t.Fatalf("failed update must not invalidate")
	}
	board, err := s.Board(context.Background())
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Advance.Notice == nil || !board.Advance.Notice.Destructive || board.Advance.InFlight {
		t.Fatalf("unexpected advance state %+v", board.Advance)
	}
	if board.Cards[0].Status != domain.StatusPending {
		t.Fatalf("status changed locally: %s", board.Cards[0].Status)
	}

	store.updateErr = nil
	if _, err := s.AdvanceStatus(context.Background(), 1); err != nil {
		t.Fatalf("guard not released after failure: %v", err)
	}
}

func TestAdvanceStatusRefusesStaleTasks(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 1, Status: domain.StatusPending}}}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()
	if _, err := s.Board(ctx); err != nil {
		t.Fatalf("board: %v", err)
	}
	if err := c.Invalidate(ctx, KeyTasks); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	store.fetchTasksErr = errUnavailable

	if _, err := s.AdvanceStatus(ctx, 1); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected refetch error, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("advanced from stale data")
	}
}

func TestSetStatusIsUnconstrained(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 5, Status: domain.StatusCompleted}}}
	m, c, _ := newTestModel(t, store)

	got, err := m.SetStatus(context.Background(), 5, domain.StatusPending)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got.Status != domain.StatusPending || c.Stats().Invalidations != 1 {
		t.Fatalf("unexpected result %+v, invalidations %d", got, c.Stats().Invalidations)
	}

	_, err = m.SetStatus(context.Background(), 5, domain.Status("archived"))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := m.SetStatus(context.Background(), 404, domain.StatusCancelled); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestBoardFilterAndCounts(t *testing.T) {
	store := &memStore{tasks: []domain.Task{
		{ID: 1, AssigneeID: ptr(1)},
		{ID: 2, AssigneeID: ptr(2)},
		{ID: 3},
		{ID: 4, AssigneeID: ptr(1)},
		{ID: 5, AssigneeID: ptr(3)},
	}}
	for i := range store.tasks {
		store.tasks[i].Status = domain.StatusPending
	}
	m, _, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()

	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Filter != domain.FilterAll || len(board.Cards) != 5 || board.Counts != (Counts{All: 5, Assigned: 2}) {
		t.Fatalf("unexpected all board %+v", board.Counts)
	}

	if err := s.SetFilter(domain.FilterAssigned); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	board, err = s.Board(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board.Cards) != 2 || board.Cards[0].ID != 1 || board.Cards[1].ID != 4 {
		t.Fatalf("unexpected assigned cards %+v", board.Cards)
	}
	if store.taskFetches != 1 {
		t.Fatalf("filter change must not refetch, fetches=%d", store.taskFetches)
	}

	var verr *domain.ValidationError
	if err := s.SetFilter("mine"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBoardSurvivesUserFetchFailure(t *testing.T) {
	store := &memStore{
		tasks:         []domain.Task{{ID: 1, Status: domain.StatusPending, AssigneeID: ptr(9)}},
		fetchUsersErr: errUnavailable,
	}
	m, _, hook := newTestModel(t, store)
	board, err := m.NewSession(1).Board(context.Background())
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Cards[0].AssigneeLabel != domain.LabelUnknownUser {
		t.Fatalf("expected fallback label, got %q", board.Cards[0].AssigneeLabel)
	}
	if board.Users.Error == "" || board.Tasks.Error != "" {
		t.Fatalf("unexpected fetch flags %+v %+v", board.Users, board.Tasks)
	}
	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning")
	}
}

func TestBoardTaskFetchFailure(t *testing.T) {
	store := &memStore{tasks: []domain.Task{{ID: 1, Title: "kept", Status: domain.StatusPending}}}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)
	ctx := context.Background()

	store.fetchTasksErr = errUnavailable
	if _, err := s.Board(ctx); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected error without prior data, got %v", err)
	}

	store.fetchTasksErr = nil
	if _, err := s.Board(ctx); err != nil {
		t.Fatalf("board: %v", err)
	}
	if err := c.Invalidate(ctx, KeyTasks); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	store.fetchTasksErr = errUnavailable
	board, err := s.Board(ctx)
	if err != nil {
		t.Fatalf("expected stale board, got %v", err)
	}
	if !board.Tasks.Stale || board.Tasks.Error == "" {
		t.Fatalf("expected stale flag, got %+v", board.Tasks)
	}
	if len(board.Cards) != 1 || board.Cards[0].Title != "kept" {
		t.Fatalf("expected last known-good cards, got %+v", board.Cards)
	}
}

func TestBoardMarksOverdueCards(t *testing.T) {
	yesterday := testNow.Add(-24 * time.Hour)
	store := &memStore{tasks: []domain.Task{
		{ID: 1, Status: domain.StatusPending, DueDate: &yesterday},
		{ID: 2, Status: domain.StatusCompleted, DueDate: &yesterday},
		{ID: 3, Status: domain.StatusCancelled, DueDate: &yesterday},
	}}
	m, _, _ := newTestModel(t, store)
	board, err := m.NewSession(1).Board(context.Background())
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	want := []bool{true, false, true}
	for i, card := range board.Cards {
		if card.IsOverdue != want[i] {
			t.Fatalf("card %d overdue=%v, want %v", card.ID, card.IsOverdue, want[i])
		}
	}
}

func TestClosedSessionDiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	store := &memStore{tasks: []domain.Task{{ID: 1, Status: domain.StatusPending}}}
	store.beforeUpdate = func(int64) {
		close(started)
		<-release
	}
	m, c, _ := newTestModel(t, store)
	s := m.NewSession(1)

	done := make(chan error, 1)
	go func() {
		_, err := s.AdvanceStatus(context.Background(), 1)
		done <- err
	}()
	<-started
	s.Close()
	close(release)

	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if store.task(1).Status != domain.StatusInProgress {
		t.Fatalf("mutation should still complete")
	}
	if c.Stats().Invalidations != 1 {
		t.Fatalf("completed mutation must still invalidate")
	}
	if _, err := s.Board(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed board, got %v", err)
	}
	if err := s.SetFilter(domain.FilterAssigned); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed filter, got %v", err)
	}
}

func TestActivityPublishedAfterMutations(t *testing.T) {
	store := &memStore{}
	rec := &recordingActivity{}
	m, _, _ := newTestModel(t, store, WithActivity(rec))
	s := m.NewSession(4)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, domain.CreateTaskInput{Title: "feed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.AdvanceStatus(ctx, created.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(rec.entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(rec.entries))
	}
	if rec.entries[0].Type != domain.ActivityTaskCreated || rec.entries[0].ActorID != 4 {
		t.Fatalf("unexpected create entry %+v", rec.entries[0])
	}
	adv := rec.entries[1]
	if adv.Previous != domain.StatusPending || adv.Status != domain.StatusInProgress || !adv.At.Equal(testNow) {
		t.Fatalf("unexpected advance entry %+v", adv)
	}
}

func TestActivityFailureDoesNotFailMutation(t *testing.T) {
	rec := &recordingActivity{err: errors.New("queue down")}
	m, _, hook := newTestModel(t, &memStore{}, WithActivity(rec))
	if _, err := m.NewSession(1).CreateTask(context.Background(), domain.CreateTaskInput{Title: "x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "activity not published" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged")
	}
}
