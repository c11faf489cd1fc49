package migrations

import "embed"

// FS contains embedded Postgres migrations for encounter storage.
//
//go:embed *.sql
var FS embed.FS
