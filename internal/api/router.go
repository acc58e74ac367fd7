package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each backend check made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.ownerMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/thing", s.handleThingDescription)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", s.handleListActions)
			r.Post("/{name}", s.handleInvokeAction)
			r.Get("/{name}", s.handleActionQueue)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/cleanup", s.handleCleanupTasks)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleStopTask)
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// wsPath returns the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status. Each configured backend is
// checked; any failure reports "degraded" with 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	backends := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			backends[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  s.version,
		"thing":    s.thing.ID,
		"tasks":    s.pool.Len(),
		"backends": backends,
	})
}

// actionAffordance describes one action in the Thing Description.
type actionAffordance struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Href        string `json:"href"`
}

// handleThingDescription returns a minimal Thing Description listing the
// Thing's actions and the event stream.
func (s *Server) handleThingDescription(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          s.thing.ID,
		"title":       s.thing.Name,
		"description": s.thing.Description,
		"actions":     s.affordances(),
		"events":      "/api/v1" + s.wsPath(),
	})
}

func (s *Server) affordances() []actionAffordance {
	defs := s.registry.List()
	out := make([]actionAffordance, 0, len(defs))
	for _, d := range defs {
		out = append(out, actionAffordance{
			Name:        d.Name,
			Description: d.Description,
			Href:        "/api/v1/actions/" + d.Name,
		})
	}
	return out
}
