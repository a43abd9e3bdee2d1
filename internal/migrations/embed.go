// Package migrations holds the PostgreSQL schema as ordered .sql files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
