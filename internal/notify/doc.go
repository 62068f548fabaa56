// Package notify carries user-facing notifications and host events out of
// the workspace state objects.
//
// State objects never present anything themselves. They hand severity-tagged
// Notifications and Events to a Sink, and ask yes/no questions through a
// Confirm gate supplied per call. Sinks include an in-memory Recorder drained
// by the HTTP API, a colored Console for the CLI, and an ntfy forwarder for
// scan and merge outcomes.
package notify
