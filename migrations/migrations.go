// Package migrations embeds the SQL schema of each service.
package migrations

import "embed"

// FS holds the migration scripts. Each service reads its own sub directory.
//
//go:embed auth/*.sql user/*.sql
var FS embed.FS

const (
	// AuthDir is the directory of the auth-service migrations within FS.
	AuthDir = "auth"

	// UserDir is the directory of the user-service migrations within FS.
	UserDir = "user"
)
