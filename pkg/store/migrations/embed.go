package migrations

import "embed"

// FS contains embedded SQLite migrations for session history.
//
//go:embed *.sql
var FS embed.FS
