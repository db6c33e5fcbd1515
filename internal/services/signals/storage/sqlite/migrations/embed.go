package migrations

import "embed"

// FS contains embedded SQLite migrations for signals storage.
//
//go:embed *.sql
var FS embed.FS
