// Package compare classifies compared fields and tracks which record each
// field of a merge is sourced from.
//
// A Selection always has exactly one master while the group has records, and
// every field maps to a valid record id. Changing the master resets every
// field back to the new master.
package compare
