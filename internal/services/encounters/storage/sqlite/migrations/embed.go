package migrations

import "embed"

// FS contains embedded SQLite migrations for encounter storage.
//
//go:embed *.sql
var FS embed.FS
