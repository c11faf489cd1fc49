// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request caps the time a single API request may spend in storage calls.
const Request = 10 * time.Second

// Shutdown limits how long servers wait for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// LiveWrite caps a single websocket frame write to a live watcher.
const LiveWrite = 5 * time.Second
