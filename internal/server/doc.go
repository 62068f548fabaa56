// Package server exposes workspace sessions to a hosting view over a gin
// HTTP API.
//
// A host creates a session, drives the listing, scan and merge workspaces
// through JSON requests, and drains notifications and events from
// /sessions/:session/events. Destructive actions run only when the request
// body carries "confirm": true; anything else is treated as a declined
// confirmation.
package server
