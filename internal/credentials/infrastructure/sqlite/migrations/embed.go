package migrations

import "embed"

// FS contains embedded SQLite migrations for credential storage.
//
//go:embed *.sql
var FS embed.FS
