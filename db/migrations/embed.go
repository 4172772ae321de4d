// Package dbmigrations exposes embedded SQL migrations for racesync binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into racesync binaries.
//
//go:embed *.sql
var Files embed.FS
