// Package pg embeds the PostgreSQL schema migrations.
package pg

import "embed"

//go:embed *.sql
var Migrations embed.FS
