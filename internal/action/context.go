package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/nerrad567/labthings-core/internal/infrastructure/logging"
)

type actionKey struct{}

type loggerKey struct{}

func withAction(ctx context.Context, a *Action) context.Context {
	return context.WithValue(ctx, actionKey{}, a)
}

func withLogger(ctx context.Context, l *logging.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the Action whose body is running with ctx, if any.
func FromContext(ctx context.Context) (*Action, bool) {
	if ctx == nil {
		return nil, false
	}
	a, ok := ctx.Value(actionKey{}).(*Action)
	return a, ok && a != nil
}

// Logger returns the logger for the running action. Records logged through
// it are tagged with the action's ID and kept in its log. Outside an action
// it returns a logger over slog.Default.
func Logger(ctx context.Context) *logging.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*logging.Logger); ok && l != nil {
			return l
		}
	}
	return &logging.Logger{Logger: slog.Default()}
}

// UpdateProgress sets the running action's progress percentage. Called
// outside an action body it logs a warning and does nothing.
func UpdateProgress(ctx context.Context, percent int) {
	a, ok := FromContext(ctx)
	if !ok {
		slog.Default().Warn("cannot update progress outside an action; skipping", "progress", percent)
		return
	}
	a.updateProgress(percent)
}

// UpdateData merges values into the running action's data map. Called
// outside an action body it logs a warning and does nothing.
func UpdateData(ctx context.Context, values map[string]any) {
	a, ok := FromContext(ctx)
	if !ok {
		slog.Default().Warn("cannot update data outside an action; skipping", "keys", len(values))
		return
	}
	a.updateData(values)
}

// StopRequested reports whether the running action has been asked to stop.
// It is always false outside an action body.
func StopRequested(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	return ok && a.StopRequested()
}

// Stopping returns a channel closed once the running action has been asked
// to stop. Outside an action body it returns nil, which never fires.
func Stopping(ctx context.Context) <-chan struct{} {
	if a, ok := FromContext(ctx); ok {
		return a.Stopping()
	}
	return nil
}

// CheckStop returns ErrCancelled once the running action has been asked to
// stop. Bodies call it between units of work:
//
//	for i := 0; i < n; i++ {
//	    if err := action.CheckStop(ctx); err != nil {
//	        return nil, err
//	    }
//	    ...
//	}
func CheckStop(ctx context.Context) error {
	if StopRequested(ctx) {
		return ErrCancelled
	}
	return nil
}

// Sleep pauses the running body for d. It returns early with ErrCancelled if
// a stop is requested, or with the context's cause if the body is terminated.
func Sleep(ctx context.Context, d time.Duration) error {
	stopping := Stopping(ctx)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stopping:
		return ErrCancelled
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
