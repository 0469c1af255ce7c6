// Package migrations embeds the SQL schema so the server and tests can apply
// it regardless of working directory.
package migrations

import "embed"

// FS holds every .sql file in this directory (e.g. 001_initial.sql).
//
//go:embed *.sql
var FS embed.FS
