package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/workflow"
)

// Sessions keeps one workflow session per user so the filter choice and
// action states survive between requests. Sessions idle for longer than the
// configured limit are closed and dropped by Sweep.
type Sessions struct {
	model Workflow
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[int64]*trackedSession
}

type trackedSession struct {
	session  *workflow.Session
	lastUsed time.Time
}

// NewSessions creates an empty registry. A zero idle keeps sessions forever.
func NewSessions(model Workflow, idle time.Duration) *Sessions {
	return &Sessions{
		model:    model,
		idle:     idle,
		now:      time.Now,
		sessions: map[int64]*trackedSession{},
	}
}

// Get returns the session for userID, creating it on first use.
func (r *Sessions) Get(userID int64) *workflow.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.sessions[userID]
	if !ok || ts.session.Closed() {
		ts = &trackedSession{session: r.model.NewSession(userID)}
		r.sessions[userID] = ts
	}
	ts.lastUsed = r.now()
	return ts.session
}

// Sweep closes sessions idle past the limit and returns how many it removed.
func (r *Sessions) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idle)
	n := 0
	for id, ts := range r.sessions {
		if ts.lastUsed.Before(cutoff) {
			ts.session.Close()
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps every interval until ctx is done.
func (r *Sessions) Run(ctx context.Context, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				logger.WithField("closed", n).Debug("sessions.sweep")
			}
		}
	}
}
