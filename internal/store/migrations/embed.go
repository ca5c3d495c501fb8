package migrations

import "embed"

// FS holds the SQL migrations applied by store.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
