package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"taskboard/domain"
)

const errorBodyLimit = 4 * 1024

// HTTPStore talks to the REST entity store.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore creates a client for the entity store at baseURL. A nil client
// gets a default with a ten second timeout.
func NewHTTPStore(baseURL, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPStore{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

// FetchTasks lists tasks in server order.
func (s *HTTPStore) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	tasks := []domain.Task{}
	if err := s.do(ctx, "fetch tasks", http.MethodGet, "/api/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// FetchUsers lists users.
func (s *HTTPStore) FetchUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := s.do(ctx, "fetch users", http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchProjects lists projects.
func (s *HTTPStore) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	projects := []domain.Project{}
	if err := s.do(ctx, "fetch projects", http.MethodGet, "/api/projects", nil, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateTask posts a new task. Each call carries a fresh Idempotency-Key so
// the store can drop transport level duplicates.
func (s *HTTPStore) CreateTask(ctx context.Context, task domain.NewTask) (domain.Task, error) {
	var created domain.Task
	hdr := http.Header{}
	hdr.Set("Idempotency-Key", uuid.NewString())
	if err := s.do(ctx, "create task", http.MethodPost, "/api/tasks", hdr, task, &created); err != nil {
		return domain.Task{}, err
	}
	return created, nil
}

// UpdateTaskStatus sends a partial update carrying only the status.
func (s *HTTPStore) UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error) {
	var updated domain.Task
	path := "/api/tasks/" + strconv.FormatInt(id, 10)
	if err := s.do(ctx, "update task", http.MethodPut, path, nil, domain.StatusUpdate{Status: status}, &updated); err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

func (s *HTTPStore) do(ctx context.Context, op, method, path string, hdr http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &domain.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.RequestError{Op: op, StatusCode: resp.StatusCode, Err: errorFromBody(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorFromBody extracts a message from an error response. Bodies shaped
// like {"message": "..."} or {"error": "..."} yield that text; anything else
// is returned verbatim. An empty body yields nil.
func errorFromBody(body io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := sonic.Unmarshal(raw, &msg); err == nil {
		if msg.Message != "" {
			return errors.New(msg.Message)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
	return errors.New(strings.TrimSpace(string(raw)))
}
