// Package migrations embeds the SQL schema files applied by the
// migrate command, in lexical order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_users.sql",
	"002_create_tasks.sql",
	"003_create_token_transactions.sql",
}
