package api

import (
	"context"

	"taskboard/cache"
	"taskboard/domain"
	"taskboard/workflow"
)

// Workflow is the part of the task model the handlers drive.
type Workflow interface {
	NewSession(userID int64) *workflow.Session
	SetStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (int64, error)
}

// StatsSource reports cache counters for the health endpoint.
type StatsSource interface {
	Stats() cache.StatsSnapshot
}

type errorResponse struct {
	Error  string           `json:"error"`
	Notice *workflow.Notice `json:"notice,omitempty"`
}

type filterRequest struct {
	Filter domain.Filter `json:"filter"`
}

type filterResponse struct {
	Filter domain.Filter `json:"filter"`
}

type createTaskResponse struct {
	Task     domain.Task      `json:"task"`
	Notice   *workflow.Notice `json:"notice,omitempty"`
	Navigate string           `json:"navigate,omitempty"`
}

type healthResponse struct {
	Status string               `json:"status"`
	Cache  *cache.StatsSnapshot `json:"cache,omitempty"`
}
