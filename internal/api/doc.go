// Package api implements the HTTP REST API and WebSocket server for a Thing.
//
// This package provides:
//   - Action invocation with error hand-off to the waiting request
//   - Task listing, inspection, stopping and cleanup
//   - A WebSocket stream of actionStatus and event messages
//   - Middleware stack (request ID, logging, recovery, CORS, owner identity)
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/thing
//	GET    /api/v1/actions
//	POST   /api/v1/actions/{name}      invoke; 201 + snapshot, or the body's abort status
//	GET    /api/v1/actions/{name}      recent invocations
//	GET    /api/v1/tasks
//	POST   /api/v1/tasks/cleanup
//	GET    /api/v1/tasks/{id}
//	DELETE /api/v1/tasks/{id}?timeout= stop, escalating to termination
//	GET    /api/v1/ws?since=           WebSocket stream
//
// # Identity
//
// Every request carries its own owner identity in its context. The hand-off
// lock an invocation holds is therefore owned by that request, and never by
// the action it started.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
