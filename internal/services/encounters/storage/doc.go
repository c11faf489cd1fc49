// Package storage defines persistence contracts for encounter state.
//
// Records mirror the operation_* tables. Stores report missing rows with
// ErrNotFound and uniqueness or state races with ErrConflict; the domain
// service translates both into user-facing error codes.
package storage
