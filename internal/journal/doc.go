// Package journal keeps a local SQLite audit trail of merges sent to the
// backend and the last observed state of every scan job.
//
// The journal is write-mostly: state objects append to it after remote
// outcomes are known and the CLI's history command reads it back. A journal
// failure never blocks the workspace; callers log it and continue.
package journal
