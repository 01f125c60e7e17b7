package data

import (
	"context"
	"database/sql"

	"github.com/target/runplane/internal/migrate"
)

// RunMigrations applies all embedded schema migrations. Safe to call
// repeatedly.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
