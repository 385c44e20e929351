// Package migrations embeds the numbered schema files of each supported
// database. Files are applied in name order and never edited once released.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
