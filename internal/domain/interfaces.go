package domain

import "context"

// Backend is one turn-resolution strategy (model-based or rule-based). The
// selector tries backends in fixed priority order; a backend signals that the
// next one should be tried by returning a Declined outcome. Backends must not
// return past the Declined boundary any transport or credential detail meant
// for logs only.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Attempt resolves the user message into an outcome. History is the prior
	// conversation window (oldest first) and catalog the current tool snapshot.
	Attempt(ctx context.Context, message string, history []Turn, catalog *Catalog) Outcome
}

// Invoker executes a named tool through the active session. Implemented by the
// catalog adapter; mocked in tests.
type Invoker interface {
	// Invoke forwards the call to the session. Transport-level failures map to
	// FailTransport, well-formed remote errors to FailRemote. Unknown names
	// fail fast with FailUnknownTool without touching the session.
	Invoke(ctx context.Context, name string, args map[string]any) ToolResult
}
