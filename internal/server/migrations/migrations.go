// Package migrations embeds the PostgreSQL schema applied by goose at
// server start.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
