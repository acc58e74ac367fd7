package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labthings-core/internal/action"
)

// stopReplyGrace is how long past the stop timeout a DELETE waits before
// answering 202 with the action still winding down.
const stopReplyGrace = 5 * time.Second

// handleListTasks returns every retained task in insertion order.
func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.pool.Tasks()
	snaps := make([]action.Snapshot, 0, len(tasks))
	for _, a := range tasks {
		snaps = append(snaps, a.Snapshot())
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleGetTask returns one task.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.pool.Get(id)
	if !ok {
		writeNotFound(w, "task not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, a.Snapshot())
}

// handleStopTask stops a task: a cooperative stop that escalates to forced
// termination after ?timeout= seconds (default: the action's stop timeout).
//
// Replies 200 with the final snapshot, or 202 if the body has still not
// returned shortly after the timeout.
func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.pool.Get(id)
	if !ok {
		writeNotFound(w, "task not found: "+id)
		return
	}

	timeout := time.Duration(-1)
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 {
			writeBadRequest(w, "timeout must be a non-negative number of seconds")
			return
		}
		timeout = time.Duration(secs * float64(time.Second))
	}

	replyBy := timeout
	if replyBy < 0 {
		replyBy = s.actCfg.StopTimeout
	}
	replyBy += stopReplyGrace

	forced := make(chan bool, 1)
	go func() { forced <- a.Stop(timeout) }()

	timer := time.NewTimer(replyBy)
	defer timer.Stop()

	select {
	case f := <-forced:
		if f {
			s.logger.Warn("task terminated", "action_id", id, "action", a.Name())
		}
		writeJSON(w, http.StatusOK, a.Snapshot())
	case <-timer.C:
		writeJSON(w, http.StatusAccepted, a.Snapshot())
	case <-r.Context().Done():
	}
}

// handleCleanupTasks removes every finished task from the pool.
func (s *Server) handleCleanupTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"removed": s.pool.Cleanup(),
	})
}
