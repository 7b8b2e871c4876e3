package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/workflow"
)

const maxBodySize = 64 * 1024

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, model Workflow, sessions *Sessions, auth Authenticator, stats StatsSource, logger *log.Logger) {
	e.GET("/api/board", getBoard(sessions, auth, logger))
	e.GET("/api/board/filter", getFilter(sessions, auth))
	e.PUT("/api/board/filter", putFilter(sessions, auth))
	e.POST("/api/board/tasks", postTask(sessions, auth, logger))
	e.POST("/api/board/tasks/:id/advance", advanceTask(sessions, auth, logger))
	e.PUT("/api/admin/tasks/:id/status", putTaskStatus(model, auth, logger))
	e.GET("/healthz", healthz(stats))
}

func healthz(stats StatsSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := healthResponse{Status: "ok"}
		if stats != nil {
			s := stats.Stats()
			resp.Cache = &s
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getBoard(sessions *Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newBoardRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
		}

		session := sessions.Get(userID)
		if raw := c.QueryParam("filter"); raw != "" {
			f, parseErr := domain.ParseFilter(raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_filter")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: parseErr.Error()})
			}
			if setErr := session.SetFilter(f); setErr != nil {
				metrics.SetErrorStage("filter")
				return writeError(c, setErr)
			}
		}

		fetchStart := time.Now()
		board, boardErr := session.Board(c.Request().Context())
		metrics.ObserveFetch(time.Since(fetchStart))
		if boardErr != nil {
			metrics.SetErrorStage("board")
			return writeError(c, boardErr)
		}
		metrics.ObserveBoard(board)
		return c.JSON(http.StatusOK, board)
	}
}

func getFilter(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, filterResponse{Filter: sessions.Get(userID).Filter()})
	}
}

func putFilter(sessions *Sessions, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req filterRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		session := sessions.Get(userID)
		if err := session.SetFilter(req.Filter); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, filterResponse{Filter: session.Filter()})
	}
}

func postTask(sessions *Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var in domain.CreateTaskInput
		if err := decodeBody(c, &in); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		created, err := sessions.Get(userID).CreateTask(c.Request().Context(), in)
		if err != nil {
			logger.WithError(err).WithField("user", userID).Debug("create task rejected")
			status := errorStatus(err)
			resp := errorResponse{Error: err.Error()}
			if status != http.StatusBadRequest {
				resp.Notice = &workflow.Notice{Title: "Error", Description: "Failed to create task", Destructive: true}
			}
			return c.JSON(status, resp)
		}
		return c.JSON(http.StatusCreated, createTaskResponse{
			Task:     created,
			Notice:   &workflow.Notice{Title: "Success", Description: "Task created successfully"},
			Navigate: workflow.TasksRoute,
		})
	}
}

func advanceTask(sessions *Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		id, err := taskIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		updated, err := sessions.Get(userID).AdvanceStatus(c.Request().Context(), id)
		if err != nil {
			logger.WithError(err).WithFields(log.Fields{"user": userID, "task": id}).Debug("advance rejected")
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func putTaskStatus(model Workflow, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		id, err := taskIDParam(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		var req domain.StatusUpdate
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		updated, err := model.SetStatus(c.Request().Context(), id, req.Status)
		if err != nil {
			return writeError(c, err)
		}
		logger.WithFields(log.Fields{"user": userID, "task": id, "status": req.Status}).Info("admin status change")
		return c.JSON(http.StatusOK, updated)
	}
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func taskIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid task id")
	}
	return id, nil
}

// errorStatus maps workflow and store failures onto HTTP statuses.
func errorStatus(err error) int {
	var (
		verr   *domain.ValidationError
		reqErr *domain.RequestError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrTaskNotFound):
		return http.StatusNotFound
	case workflow.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), errorResponse{Error: err.Error()})
}
