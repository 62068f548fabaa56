// Package logging assembles structured slog loggers used across mergedesk.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so session-scoped code can tag log
// lines with the session id. Console output goes to stderr so command output
// on stdout stays machine readable; the optional log file always receives
// JSON records.
package logging
