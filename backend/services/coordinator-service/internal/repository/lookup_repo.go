package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// existenceColumns is the allow-list for Exists; identifiers are never taken from callers verbatim.
var existenceColumns = map[string]map[string]bool{
	"users":           {"id": true},
	"stations":        {"id": true},
	"charging_points": {"id": true, "station_id": true},
}

// LookupRepository answers existence checks against reference tables.
type LookupRepository struct {
	db *sql.DB
}

// NewLookupRepository returns repository.
func NewLookupRepository(db *sql.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// Exists reports whether a row with column = value exists in table.
func (r *LookupRepository) Exists(ctx context.Context, table, column, value string) (bool, error) {
	if !existenceColumns[table][column] {
		return false, fmt.Errorf("lookup: %s.%s is not queryable", table, column)
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, table, column)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
