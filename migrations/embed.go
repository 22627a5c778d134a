// Package migrations holds the versioned PostgreSQL schema applied by
// cmd/migrate and the integration tests.
package migrations

import "embed"

// FS contains the numbered up/down SQL pairs
//
//go:embed *.sql
var FS embed.FS
