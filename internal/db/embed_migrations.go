package db

import "embed"

// MigrationFS holds the schema for identities, sessions and audit_logs.
// cmd/migrate applies it through the migrate runner.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
