// Package migrations ships the schema migration files inside the binary so
// deployments never depend on a migrations directory being present on disk.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
