// Package api is the HTTP client of the oracle backend.
//
// The three remote computations (origin, celestial, inquiry) are plain JSON
// POST endpoints answering with an envelope:
//
//	{"success": true, "data": {"starship": {"archive_id": "..."}}, "message": ""}
//
// Client turns each endpoint into a task.Spec so the orchestrator can run
// them concurrently, and knows the URL of the stream endpoint.
package api
