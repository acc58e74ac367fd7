package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labthings-core/internal/action"
	"github.com/nerrad567/labthings-core/internal/lock"
)

// defaultWaitFor is used when neither the definition nor the config set
// how long an invocation waits for its action.
const defaultWaitFor = time.Second

// handleListActions returns every registered action.
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": s.affordances(),
	})
}

// handleActionQueue returns snapshots of an action's recent invocations,
// oldest first.
func (s *Server) handleActionQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	queue, ok := s.registry.Queue(name)
	if !ok {
		writeNotFound(w, "action not found: "+name)
		return
	}

	snaps := make([]action.Snapshot, 0, len(queue))
	for _, a := range queue {
		snaps = append(snaps, a.Snapshot())
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleInvokeAction starts an action and waits briefly for it.
//
// The request holds a fresh hand-off lock while it waits. If the body
// aborts with a ProtocolError in that window the error is answered here
// with its own status; otherwise the reply is 201 with the action's
// snapshot, finished or still running.
func (s *Server) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	def, ok := s.registry.Lookup(name)
	if !ok {
		writeNotFound(w, "action not found: "+name)
		return
	}

	input, err := decodeInput(r.Body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	handoff := lock.New("handoff:"+name, s.actCfg.HandoffLockTimeout)
	if err := handoff.Acquire(ctx); err != nil {
		s.logger.Error("acquiring hand-off lock", "action", name, "error", err)
		writeInternalError(w, "could not start action")
		return
	}
	locked := true
	release := func() {
		if locked {
			locked = false
			//nolint:errcheck // held by this request since Acquire above
			handoff.Release(ctx)
		}
	}
	defer release()

	a, err := s.registry.Invoke(ctx, s.pool, name,
		action.WithInput(input),
		action.WithHTTPErrorLock(handoff),
	)
	switch {
	case errors.Is(err, action.ErrPoolFull):
		writeServiceUnavailable(w, "too many running actions")
		return
	case err != nil:
		s.logger.Error("invoking action", "action", name, "error", err)
		writeInternalError(w, "could not start action")
		return
	}

	_, err = a.Get(ctx, s.waitFor(def))
	release()

	// The body may have handed an error off between Get returning and the
	// lock being released. That decision is recorded before the body can
	// see the lock free, so it is visible here even if Done has not fired.
	if errors.Is(err, action.ErrTimeout) {
		if handedOff := a.HandedOff(); handedOff != nil {
			err = handedOff
		}
	}
	if pe, ok := action.AsProtocolError(err); ok {
		writeProtocolError(w, pe)
		return
	}

	w.Header().Set("Location", "/api/v1/tasks/"+a.ID())
	writeJSON(w, http.StatusCreated, a.Snapshot())
}

// waitFor picks the invocation wait for def.
func (s *Server) waitFor(def action.Definition) time.Duration {
	switch {
	case def.WaitFor > 0:
		return def.WaitFor
	case s.actCfg.WaitFor > 0:
		return s.actCfg.WaitFor
	default:
		return defaultWaitFor
	}
}

// decodeInput reads an optional JSON request body. An empty body is no
// input.
func decodeInput(body io.Reader) (any, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return input, nil
}
