// Package migrations embeds the goose SQL migrations so binaries can apply
// them without a checkout.
package migrations

import "embed"

// FS holds sql/*.sql. Use Dir as the goose directory.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS that goose should read.
const Dir = "sql"
