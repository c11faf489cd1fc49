// Package domain implements encounter use-cases on top of the resolution
// engine and encounter storage.
//
// Service owns validation, authorization against encounter ownership, and the
// translation of storage sentinels into coded errors. Resolution itself is
// delegated to the engine package; persistence of a resolved turn is a single
// atomic store call keyed by the caller's idempotency key.
package domain
