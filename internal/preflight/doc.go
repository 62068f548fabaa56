// Package preflight provides readiness checks for the duplicate backend and
// the filesystem paths mergedesk writes to.
//
// The serve command runs RunAll before listening and logs every failed
// check; "mergedesk config validate --check" prints the full result list.
package preflight
