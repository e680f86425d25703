package storage

import (
	"context"
	"embed"

	"github.com/md-rashed-zaman/clinicsched/libs/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema and returns the files it ran.
func Migrate(ctx context.Context, pool *db.Pool) ([]string, error) {
	return db.Migrate(ctx, pool, migrationFS, "migrations")
}
