// Package migrations carries the goose SQL migrations of the service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
