package migrations

import "embed"

// FS holds the cache store schema migrations.
//
//go:embed *.sql
var FS embed.FS
