// Package server composes the encounter service: storage, domain service,
// HTTP API, live hub, and the gRPC health endpoint.
package server
