// Package migrations embeds the PostgreSQL schema so the binary can migrate
// without the files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
