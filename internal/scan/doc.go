// Package scan tracks background duplicate scan jobs for a session.
//
// A Tracker enforces single flight per object-type scope, polls the running
// job on a timer until it completes, and aborts on request. Every timer and
// in-flight poll is tied to a generation counter so results landing after an
// abort, a superseding start, a scope change or Close are dropped. The
// package also fronts the backend's daily scan schedules.
package scan
