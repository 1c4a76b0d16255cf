// Package migrations embeds the cache store's SQL migrations.
package migrations

import "embed"

// FS holds the cache schema migrations, applied in file-name order.
//
//go:embed *.sql
var FS embed.FS
