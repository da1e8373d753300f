// Package migrations embeds the goose migrations for the local event log.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
