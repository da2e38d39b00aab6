// Package migrations embeds the schema files so the server can bring a
// database up to date at startup without shipping loose SQL alongside the
// binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
