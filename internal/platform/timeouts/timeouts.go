// Package timeouts defines shared timeout constants used across the daemon.
// Centralizing these values prevents drift between boundaries and makes the
// durations discoverable.
package timeouts

import "time"

// UpstreamRequest caps the time allowed for one request to the origin API,
// including queue replay attempts.
const UpstreamRequest = 10 * time.Second

// AssetFetch caps the time allowed for fetching one static asset or image
// from the origin during precache or cache-miss fill.
const AssetFetch = 30 * time.Second

// ReadHeader limits how long the HTTP proxy waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP proxy waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
