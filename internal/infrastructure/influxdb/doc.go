// Package influxdb provides InfluxDB connectivity for the LabThings server.
//
// It wraps the official influxdb-client-go v2 library to keep the run
// history of one Thing's actions.
//
// # Purpose
//
// Every finished action is written to the action_runs measurement so run
// history outlives the bounded in-memory action pool:
//
//	action_runs,action=average_data,status=completed,thing=spectrometer-1 task_id="…",duration_ms=512i,progress=100i,log_entries=3i
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Thing.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteActionRun(influxdb.ActionRun{ID: id, Action: "find_peak", Status: "error"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback wrapped in ErrWriteFailed, and runs written after Close
// as ErrActionRunDropped. Connection and health check errors are returned
// directly.
package influxdb
