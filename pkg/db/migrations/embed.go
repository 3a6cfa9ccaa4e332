// Package migrations embeds the SQL schema for the access-control tables.
// The statements are portable between PostgreSQL and SQLite.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
