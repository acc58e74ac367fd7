package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	measurementActionRuns = "action_runs"
)

// ActionRun summarises one finished action for the action_runs measurement.
type ActionRun struct {
	// ID is the task ID. Written as a field, not a tag, to keep series
	// cardinality bounded.
	ID string

	// Action is the action name.
	Action string

	// Status is the terminal status (completed, cancelled, error).
	Status string

	Started   time.Time
	Completed time.Time

	// Progress is the last reported progress, or -1 if none was reported.
	Progress int

	// LogEntries is how many log records the action captured.
	LogEntries int
}

// actionRunPoint converts run into a point.
//
// Tags: action, status
// Fields: task_id, duration_ms, log_entries and progress (when reported)
func actionRunPoint(run ActionRun) *write.Point {
	fields := map[string]interface{}{
		"task_id":     run.ID,
		"log_entries": run.LogEntries,
	}
	if !run.Started.IsZero() && !run.Completed.IsZero() {
		fields["duration_ms"] = run.Completed.Sub(run.Started).Milliseconds()
	}
	if run.Progress >= 0 {
		fields["progress"] = run.Progress
	}

	ts := run.Completed
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		measurementActionRuns,
		map[string]string{
			"action": run.Action,
			"status": run.Status,
		},
		fields,
		ts,
	)
}

// WriteActionRun records a finished action, tagged with the client's Thing.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Runs written after Close are reported as ErrActionRunDropped.
func (c *Client) WriteActionRun(run ActionRun) {
	if !c.IsConnected() {
		c.report(fmt.Errorf("%w: %s %s (%s)", ErrActionRunDropped, run.Action, run.ID, run.Status))
		return
	}
	c.writeAPI.WritePoint(actionRunPoint(run))
}
