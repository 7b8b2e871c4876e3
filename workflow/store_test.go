package workflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/cache"
	"taskboard/domain"
)

var testNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

// memStore is an in-memory entity store. Hooks run before the matching call
// and may block to hold a request in flight.
type memStore struct {
	mu       sync.Mutex
	tasks    []domain.Task
	users    []domain.User
	projects []domain.Project
	lastID   int64

	fetchTasksErr error
	fetchUsersErr error
	createErr     error
	updateErr     error

	beforeUpdate func(id int64)

	taskFetches int
	creates     int
	updates     int
}

func (s *memStore) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskFetches++
	if s.fetchTasksErr != nil {
		return nil, s.fetchTasksErr
	}
	return append([]domain.Task{}, s.tasks...), nil
}

func (s *memStore) FetchUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchUsersErr != nil {
		return nil, s.fetchUsersErr
	}
	return append([]domain.User{}, s.users...), nil
}

func (s *memStore) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Project{}, s.projects...), nil
}

func (s *memStore) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return domain.Task{}, s.createErr
	}
	s.lastID++
	t := domain.Task{
		ID:          s.lastID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
		ProjectID:   in.ProjectID,
		CreatedAt:   testNow,
	}
	if in.DueDate != nil {
		due, err := time.Parse(time.RFC3339Nano, *in.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &due
	}
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *memStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error) {
	if s.beforeUpdate != nil {
		s.beforeUpdate(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return domain.Task{}, s.updateErr
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Status = status
			return s.tasks[i], nil
		}
	}
	return domain.Task{}, &domain.RequestError{Op: "update task", StatusCode: http.StatusNotFound}
}

func (s *memStore) task(id int64) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := domain.FindTask(s.tasks, id)
	return t
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []domain.Activity
	err     error
}

func (r *recordingActivity) Publish(ctx context.Context, a domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, a)
	return nil
}

func newTestModel(t *testing.T, store *memStore, opts ...Option) (*Model, *cache.Client, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	c := cache.New(cache.NewMemory(), logger)
	base := []Option{WithLogger(logger), WithClock(func() time.Time { return testNow })}
	return NewModel(store, c, append(base, opts...)...), c, hook
}

func ptr(v int64) *int64 { return &v }

var errUnavailable = &domain.RequestError{Op: "fetch", Err: errors.New("connection refused")}
