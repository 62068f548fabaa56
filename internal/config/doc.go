// Package config loads, normalizes, and validates mergedesk configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MERGEDESK_BACKEND_URL and MERGEDESK_BACKEND_TOKEN. The Config type
// centralizes every knob the CLI and API server need: where the remote
// duplicate service lives, how often scan jobs are polled, how long the
// browser waits after the last keystroke before searching.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
