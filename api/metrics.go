package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/workflow"
)

// boardRequestMetrics collects timings for one board request and logs them
// as a single structured line.
type boardRequestMetrics struct {
	logger        *log.Logger
	start         time.Time
	authDuration  time.Duration
	fetchDuration time.Duration
	filter        string
	cards         int
	staleTasks    bool
	fetchErrors   []string
	errorStage    string
}

func newBoardRequestMetrics(logger *log.Logger) *boardRequestMetrics {
	return &boardRequestMetrics{logger: logger, start: time.Now()}
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// ObserveBoard records what the board contained.
func (m *boardRequestMetrics) ObserveBoard(b workflow.Board) {
	m.filter = string(b.Filter)
	m.cards = len(b.Cards)
	m.staleTasks = b.Tasks.Stale
	for name, fs := range map[string]workflow.FetchState{"tasks": b.Tasks, "users": b.Users, "projects": b.Projects} {
		if fs.Error != "" {
			m.fetchErrors = append(m.fetchErrors, name)
		}
	}
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":       "/api/board",
		"status":      status,
		"total_ms":    durationToMillis(time.Since(m.start)),
		"cards":       m.cards,
		"stale_tasks": m.staleTasks,
	}
	if m.filter != "" {
		fields["filter"] = m.filter
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if len(m.fetchErrors) > 0 {
		fields["fetch_errors"] = len(m.fetchErrors)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("board.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
