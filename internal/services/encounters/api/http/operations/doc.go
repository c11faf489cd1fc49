// Package operations serves the encounter JSON API mounted under
// /api/operations, its bearer-token auth, and the live websocket feed.
package operations
