// Package pkg provides shared utilities for the softtmc instrument core.
//
// This package contains common functionality used by the command engine,
// its transports and the command-line tools, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for transport and protocol failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component tag:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEngine, "reply sent", "len", 12, "tag", 3)
//
// Level and format names from configuration files are converted with
// [ParseLogLevel] and [ParseLogFormat].
//
// # Errors
//
// Common errors are defined as sentinel values and wrapped at package
// boundaries:
//
//	if errors.Is(err, pkg.ErrTagMismatch) {
//	    // Stale reply from a previous request
//	}
package pkg
