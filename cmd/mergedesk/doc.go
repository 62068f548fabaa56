// Command mergedesk reviews and merges duplicate records held by a remote
// duplicate service.
//
// The serve subcommand exposes review sessions over HTTP for a hosting view.
// The remaining subcommands drive the same workspace components from a
// terminal: listing duplicate sets, comparing and merging one set, running
// and scheduling scans, and reading the local audit journal.
package main
