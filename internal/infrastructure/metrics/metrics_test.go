package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/labthings-core/internal/action"
)

func snapshot(id, name string, status action.Status) action.Snapshot {
	return action.Snapshot{ID: id, Action: name, Status: status}
}

func TestObserve_Lifecycle(t *testing.T) {
	c := New()

	c.Observe(snapshot("a1", "average_data", action.StatusRunning))
	// Progress updates repeat the running status and must not be recounted.
	c.Observe(snapshot("a1", "average_data", action.StatusRunning))

	if got := testutil.ToFloat64(c.started.WithLabelValues("average_data")); got != 1 {
		t.Errorf("started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.running.WithLabelValues("average_data")); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}

	begin := time.Now()
	end := begin.Add(2 * time.Second)
	done := snapshot("a1", "average_data", action.StatusCompleted)
	done.TimeStarted = &begin
	done.TimeCompleted = &end
	c.Observe(done)

	if got := testutil.ToFloat64(c.running.WithLabelValues("average_data")); got != 0 {
		t.Errorf("running after finish = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.finished.WithLabelValues("average_data", "completed")); got != 1 {
		t.Errorf("finished = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestObserve_CancelledBeforeStart(t *testing.T) {
	c := New()
	c.Observe(snapshot("a1", "find_peak", action.StatusCancelled))

	if got := testutil.ToFloat64(c.finished.WithLabelValues("find_peak", "cancelled")); got != 1 {
		t.Errorf("finished = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.running.WithLabelValues("find_peak")); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(c.duration); n != 0 {
		t.Errorf("duration series = %d, want 0 without start time", n)
	}
}

func TestObserve_PendingIgnored(t *testing.T) {
	c := New()
	c.Observe(snapshot("a1", "x", action.StatusPending))

	if n := testutil.CollectAndCount(c.started); n != 0 {
		t.Errorf("started series = %d, want 0", n)
	}
}

func TestObserve_FromPool(t *testing.T) {
	c := New()
	pool := action.NewPool(action.Config{}, nil)
	pool.AddObserver(c.Observe)

	_, _ = pool.Spawn(context.Background(), "quick", func(context.Context, any) (any, error) {
		return "ok", nil
	})
	_, _ = pool.Spawn(context.Background(), "quick", func(context.Context, any) (any, error) {
		return nil, errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Join(ctx); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := testutil.ToFloat64(c.started.WithLabelValues("quick")); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.finished.WithLabelValues("quick", "completed")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.finished.WithLabelValues("quick", "error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.running.WithLabelValues("quick")); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	c := New()
	c.Observe(snapshot("a1", "average_data", action.StatusRunning))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`labthings_actions_started_total{action="average_data"} 1`,
		`labthings_actions_running{action="average_data"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
