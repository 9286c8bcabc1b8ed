package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargehub/backend/services/coordinator-service/internal/models"
)

// TariffRepository handles tariff lookups.
type TariffRepository struct {
	db *sql.DB
}

// NewTariffRepository returns repository.
func NewTariffRepository(db *sql.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// GetActiveTariff returns the most recently updated active tariff.
func (r *TariffRepository) GetActiveTariff(ctx context.Context) (*models.Tariff, error) {
	const query = `
		SELECT id, name, rate_per_kwh, is_active, created_at, updated_at
		FROM tariffs
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var t models.Tariff
	err := r.db.QueryRowContext(ctx, query).Scan(
		&t.ID,
		&t.Name,
		&t.RatePerKWh,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
