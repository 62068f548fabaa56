// Package browser holds the state of the duplicate set listing: object-type
// scope, per-field filters, debounced search, pagination and optimistic
// deletes.
//
// Every dimension change resets the page to 1 and reloads. A reload fetches
// the listing, the summary and the recent scan jobs concurrently and fails as
// a whole. Reloads are serialized; background refreshes are skipped while one
// is running.
package browser
