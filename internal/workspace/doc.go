// Package workspace composes a reviewer session from the listing browser, the
// scan tracker and per-group merge workspaces, and routes their events: a
// completed merge reloads the listing, a closed workspace is forgotten, and a
// finished scan reloads everything.
package workspace
