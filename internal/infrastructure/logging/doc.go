// Package logging provides structured logging for LabThings.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//   - Per-action log capture (CaptureHandler)
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
// Use field redaction for sensitive data:
//
//	logger.Info("API key used", "key_prefix", key[:8]+"...")
//
// # Per-action capture
//
// CaptureHandler tees records into a bounded per-action log while still
// forwarding them to the process handler:
//
//	h := logging.NewCaptureHandler(logger.Handler(), func(r logging.Record) { buf.Append(r) })
//	actionLogger := slog.New(h).With("action_id", id)
//	...
//	h.Detach() // stop capturing once the action is finished
package logging
