// Package remote defines the request and response shapes exchanged with the
// duplicate backend and provides an HTTP client for it.
//
// The backend discovers duplicate groups, precomputes field differences,
// performs merges and runs scan jobs. Nothing in mergedesk computes
// duplicates itself; every state object talks to the backend through the
// Comparisons, Scans and Listings interfaces declared here. Failed calls are
// returned as *Error and Message turns any error into user-facing text.
package remote
