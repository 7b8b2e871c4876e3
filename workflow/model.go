// Package workflow derives task boards from the entity store and carries out
// task mutations under the invalidate-then-refetch contract: a successful
// mutation never patches cached data, it marks the tasks collection stale so
// the next read goes back to the store.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskboard/cache"
	"taskboard/domain"
)

// Cache keys for the three entity collections.
const (
	KeyTasks    = "/api/tasks"
	KeyUsers    = "/api/users"
	KeyProjects = "/api/projects"
)

// TasksRoute is where the view goes after a task is created.
const TasksRoute = "/tasks"

const tracerName = "taskboard/workflow"

var (
	ErrNoTransition       = errors.New("no status transition offered")
	ErrTransitionInFlight = errors.New("status change already in flight")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSessionClosed      = errors.New("session closed")
)

// EntityStore is the remote authority for tasks, users and projects.
type EntityStore interface {
	FetchTasks(ctx context.Context) ([]domain.Task, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchProjects(ctx context.Context) ([]domain.Project, error)
	CreateTask(ctx context.Context, task domain.NewTask) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error)
}

// ActivityPublisher receives a record of every successful mutation.
type ActivityPublisher interface {
	Publish(ctx context.Context, a domain.Activity) error
}

// Model is shared by every session. It owns no task state; the cache holds
// the last fetched collections.
type Model struct {
	store    EntityStore
	cache    *cache.Client
	guard    Guard
	now      func() time.Time
	logger   *log.Logger
	tracer   trace.Tracer
	activity ActivityPublisher
}

// Option configures a Model.
type Option func(*Model)

// WithGuard replaces the default in-process advance guard.
func WithGuard(g Guard) Option { return func(m *Model) { m.guard = g } }

// WithClock sets the time source used for overdue checks and activity
// timestamps.
func WithClock(now func() time.Time) Option { return func(m *Model) { m.now = now } }

func WithLogger(l *log.Logger) Option { return func(m *Model) { m.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(m *Model) { m.tracer = t } }

// WithActivity publishes an activity entry after each successful mutation.
// Publishing is best effort.
func WithActivity(p ActivityPublisher) Option { return func(m *Model) { m.activity = p } }

// NewModel creates a Model over store and c.
func NewModel(store EntityStore, c *cache.Client, opts ...Option) *Model {
	m := &Model{
		store:  store,
		cache:  c,
		guard:  NewMemoryGuard(),
		now:    time.Now,
		logger: log.StandardLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSession opens a board view for the given user.
func (m *Model) NewSession(userID int64) *Session {
	return newSession(m, userID)
}

// Tasks returns the task collection through the cache.
func (m *Model) Tasks(ctx context.Context) (cache.Snapshot[[]domain.Task], error) {
	return cache.Fetch(ctx, m.cache, KeyTasks, m.store.FetchTasks)
}

// Users returns the user collection through the cache.
func (m *Model) Users(ctx context.Context) (cache.Snapshot[[]domain.User], error) {
	return cache.Fetch(ctx, m.cache, KeyUsers, m.store.FetchUsers)
}

// Projects returns the project collection through the cache.
func (m *Model) Projects(ctx context.Context) (cache.Snapshot[[]domain.Project], error) {
	return cache.Fetch(ctx, m.cache, KeyProjects, m.store.FetchProjects)
}

// SetStatus writes any valid status to a task. It is the unconstrained path
// for admin and bulk tooling and does not consult the offered transitions.
func (m *Model) SetStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error) {
	ctx, span := m.tracer.Start(ctx, "workflow.SetStatus", trace.WithAttributes(
		attribute.Int64("task.id", id),
		attribute.String("task.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		err := &domain.ValidationError{Field: "status", Message: "must be one of pending, in_progress, completed, cancelled"}
		fail(span, err)
		return domain.Task{}, err
	}
	task, err := m.updateStatus(ctx, id, "", status, 0)
	if err != nil {
		fail(span, err)
		return domain.Task{}, err
	}
	return task, nil
}

func (m *Model) createTask(ctx context.Context, in domain.CreateTaskInput, actor int64) (domain.Task, error) {
	created, err := m.store.CreateTask(ctx, in.Payload())
	if err != nil {
		m.logger.WithError(err).Warn("create task failed")
		return domain.Task{}, err
	}
	m.invalidateTasks(ctx)
	m.publish(ctx, domain.Activity{
		Type:    domain.ActivityTaskCreated,
		TaskID:  created.ID,
		Title:   created.Title,
		ActorID: actor,
		Status:  created.Status,
		At:      m.now(),
	})
	m.logger.WithField("task", created.ID).Info("task created")
	return created, nil
}

func (m *Model) updateStatus(ctx context.Context, id int64, from, to domain.Status, actor int64) (domain.Task, error) {
	updated, err := m.store.UpdateTaskStatus(ctx, id, to)
	if err != nil {
		m.logger.WithError(err).WithField("task", id).Warn("update task status failed")
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) && reqErr.NotFound() {
			return domain.Task{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
		}
		return domain.Task{}, err
	}
	m.invalidateTasks(ctx)
	m.publish(ctx, domain.Activity{
		Type:     domain.ActivityTaskStatusChanged,
		TaskID:   id,
		Title:    updated.Title,
		ActorID:  actor,
		Status:   to,
		Previous: from,
		At:       m.now(),
	})
	m.logger.WithFields(log.Fields{"task": id, "status": to}).Info("task status updated")
	return updated, nil
}

// invalidateTasks runs after the store accepted a mutation. A failure here
// cannot undo the mutation, so it is logged rather than returned.
func (m *Model) invalidateTasks(ctx context.Context) {
	if err := m.cache.Invalidate(context.WithoutCancel(ctx), KeyTasks); err != nil {
		m.logger.WithError(err).Error("tasks cache not invalidated")
	}
}

func (m *Model) publish(ctx context.Context, a domain.Activity) {
	if m.activity == nil {
		return
	}
	if err := m.activity.Publish(context.WithoutCancel(ctx), a); err != nil {
		m.logger.WithError(err).WithField("task", a.TaskID).Warn("activity not published")
	}
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
