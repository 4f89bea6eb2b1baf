// Package logging assembles the structured slog loggers used across
// mediapack.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes standardized field helpers so pipeline code tags log lines
// with job IDs, sources, and piece counts consistently. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
