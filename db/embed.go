// Package db carries the embedded schema migrations.
package db

import "embed"

// Migrations holds the versioned SQL migration files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
