package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	taskPartition    = "task"
	userPartition    = "user"
	projectPartition = "project"

	maxAddAttempts = 3
)

type tableClient interface {
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
}

// TableStore keeps tasks, users and projects in Azure Table storage. It
// serves the same operations as HTTPStore for deployments without a REST
// entity store.
type TableStore struct {
	tasks    tableClient
	users    tableClient
	projects tableClient
	now      func() time.Time
	logger   *log.Logger
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tasksTable, usersTable, projectsTable string, logger *log.Logger) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		tasks:    svc.NewClient(tasksTable),
		users:    svc.NewClient(usersTable),
		projects: svc.NewClient(projectsTable),
		now:      time.Now,
		logger:   logger,
	}, nil
}

func (s *TableStore) log() *log.Logger {
	if s.logger == nil {
		return log.StandardLogger()
	}
	return s.logger
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// References and timestamps are kept as strings so entities need no EDM
// type annotations.
type taskEntity struct {
	entityKeys
	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
	AssigneeID  string `json:"AssigneeId,omitempty"`
	ProjectID   string `json:"ProjectId,omitempty"`
	DueDate     string `json:"DueDate,omitempty"`
	CreatedAt   string `json:"CreatedAt"`
}

type taskStatusPatch struct {
	entityKeys
	Status string `json:"Status"`
}

type userEntity struct {
	entityKeys
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
}

type projectEntity struct {
	entityKeys
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	Description string `json:"Description,omitempty"`
	OwnerID     string `json:"OwnerId,omitempty"`
	CreatedAt   string `json:"CreatedAt,omitempty"`
}

func (e taskEntity) task() (domain.Task, error) {
	id, err := parseRowKey(e.RowKey)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          id,
		Title:       e.Title,
		Description: e.Description,
		Status:      domain.Status(e.Status),
		Priority:    domain.Priority(e.Priority),
	}
	if t.AssigneeID, err = parseRef(e.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	if t.ProjectID, err = parseRef(e.ProjectID); err != nil {
		return domain.Task{}, err
	}
	if e.DueDate != "" {
		due, err := time.Parse(time.RFC3339Nano, e.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("due date: %w", err)
		}
		t.DueDate = &due
	}
	if e.CreatedAt != "" {
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, e.CreatedAt); err != nil {
			return domain.Task{}, fmt.Errorf("created at: %w", err)
		}
	}
	return t, nil
}

func newTaskEntity(t domain.Task) taskEntity {
	e := taskEntity{
		entityKeys:  entityKeys{PartitionKey: taskPartition, RowKey: rowKey(t.ID)},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		AssigneeID:  formatRef(t.AssigneeID),
		ProjectID:   formatRef(t.ProjectID),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		e.DueDate = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return e
}

// listPartition hands every entity in partition to each. A row each cannot
// decode is logged and skipped so one bad record does not hide the rest.
func (s *TableStore) listPartition(ctx context.Context, c tableClient, partition string, each func([]byte) error) error {
	filter := "PartitionKey eq '" + partition + "'"
	pager := c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := each(e); err != nil {
				s.log().WithError(err).WithField("partition", partition).Warn("skipping malformed entity")
			}
		}
	}
	return nil
}

// FetchTasks lists tasks in RowKey order, which is creation order. Rows that
// fail to decode are left out.
func (s *TableStore) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.listPartition(ctx, s.tasks, taskPartition, func(raw []byte) error {
		var ent taskEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		t, err := ent.task()
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, tableError("fetch tasks", err)
	}
	return tasks, nil
}

// FetchUsers lists users.
func (s *TableStore) FetchUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := s.listPartition(ctx, s.users, userPartition, func(raw []byte) error {
		var ent userEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		id, err := parseRowKey(ent.RowKey)
		if err != nil {
			return err
		}
		users = append(users, domain.User{ID: id, FirstName: ent.FirstName, LastName: ent.LastName})
		return nil
	})
	if err != nil {
		return nil, tableError("fetch users", err)
	}
	return users, nil
}

// FetchProjects lists projects.
func (s *TableStore) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := s.listPartition(ctx, s.projects, projectPartition, func(raw []byte) error {
		var ent projectEntity
		if err := sonic.Unmarshal(raw, &ent); err != nil {
			return err
		}
		id, err := parseRowKey(ent.RowKey)
		if err != nil {
			return err
		}
		p := domain.Project{
			ID:          id,
			Name:        ent.Name,
			Status:      domain.ProjectStatus(ent.Status),
			Description: ent.Description,
		}
		if p.OwnerID, err = parseRef(ent.OwnerID); err != nil {
			return err
		}
		if ent.CreatedAt != "" {
			if p.CreatedAt, err = time.Parse(time.RFC3339Nano, ent.CreatedAt); err != nil {
				return err
			}
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return nil, tableError("fetch projects", err)
	}
	return projects, nil
}

// CreateTask assigns an id and inserts the task. An id collision with a
// row written by another process is retried with a fresh id.
func (s *TableStore) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	t := domain.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
		ProjectID:   in.ProjectID,
		CreatedAt:   s.now().UTC(),
	}
	if in.DueDate != nil {
		due, err := time.Parse(time.RFC3339Nano, *in.DueDate)
		if err != nil {
			return domain.Task{}, &domain.ValidationError{Field: "dueDate", Message: "must be an ISO-8601 timestamp"}
		}
		t.DueDate = &due
	}

	var err error
	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		t.ID = nextID()
		var payload []byte
		payload, err = sonic.Marshal(newTaskEntity(t))
		if err != nil {
			return domain.Task{}, fmt.Errorf("create task: encode: %w", err)
		}
		_, err = s.tasks.AddEntity(ctx, payload, nil)
		if err == nil {
			return t, nil
		}
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.EntityAlreadyExists)) {
			break
		}
	}
	return domain.Task{}, tableError("create task", err)
}

// UpdateTaskStatus merges the new status into the stored row. The write is
// conditional on the ETag read just before it.
func (s *TableStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, taskPartition, rowKey(id), nil)
	if err != nil {
		return domain.Task{}, tableError("update task", err)
	}
	var ent taskEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, fmt.Errorf("update task: decode: %w", err)
	}
	patch, err := sonic.Marshal(taskStatusPatch{entityKeys: ent.entityKeys, Status: string(status)})
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: encode: %w", err)
	}
	etag := resp.ETag
	if _, err := s.tasks.UpdateEntity(ctx, patch, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.Task{}, tableError("update task", err)
	}
	ent.Status = string(status)
	return ent.task()
}

// tableError turns Azure response errors into RequestErrors so callers see
// the same failure shape as the REST store.
func tableError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.StatusCode
		if code == 0 {
			code = http.StatusBadGateway
		}
		return &domain.RequestError{Op: op, StatusCode: code, Err: errors.New(respErr.ErrorCode)}
	}
	return &domain.RequestError{Op: op, Err: err}
}
