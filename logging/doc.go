// Logging in astrooracle
//
// The Logger interface defines the logging methods (Debug, Info, Warn, Error)
// that the controller, sessions and the orchestrator use for observability.
// Arguments are slog style key/value pairs.
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - OracleLogger with component/session context and domain helpers
//   - NoOpLogger for silent operation (tests, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	ctrl := engine.New(specs, transport, func(o *engine.Options) { o.Logger = logger })
package logging
