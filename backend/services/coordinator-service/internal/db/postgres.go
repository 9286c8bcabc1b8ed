package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	libdb "chargehub/backend/libs/db"
)

//go:embed schema.sql
var schema string

// NewPostgres returns shared DB connection.
func NewPostgres(ctx context.Context, dsn string, opts libdb.PoolOptions) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, dsn, opts)
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
