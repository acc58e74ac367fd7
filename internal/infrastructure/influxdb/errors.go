package influxdb

import "errors"

// Errors reported by the run history. Match with errors.Is.
var (
	// ErrDisabled is returned by Connect when InfluxDB is disabled in config.
	ErrDisabled = errors.New("influxdb: run history disabled in configuration")

	// ErrNoThingID is returned by Connect without a Thing to record runs for.
	ErrNoThingID = errors.New("influxdb: thing id required")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrUnhealthy is returned when the server answers the ping but is not
	// ready to accept writes.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrWriteFailed wraps batch write failures delivered to SetOnError.
	ErrWriteFailed = errors.New("influxdb: action run write failed")

	// ErrActionRunDropped is delivered to SetOnError when a run is written
	// after Close.
	ErrActionRunDropped = errors.New("influxdb: action run dropped")
)
