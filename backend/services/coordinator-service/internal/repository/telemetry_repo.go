package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chargehub/backend/services/coordinator-service/internal/models"
)

// TelemetryRepository persists meter readings.
type TelemetryRepository struct {
	db *sql.DB
}

// NewTelemetryRepository returns repository.
func NewTelemetryRepository(db *sql.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// AppendSample stores a new sample. Duplicate timestamps are kept as separate rows.
func (r *TelemetryRepository) AppendSample(ctx context.Context, sample *models.TelemetrySample) error {
	const query = `
		INSERT INTO telemetry_samples (session_id, recorded_at, meter_wh, power_kw, soc)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		sample.SessionID,
		sample.RecordedAt,
		sample.MeterWh,
		sample.PowerKW,
		sample.SoC,
	).Scan(&sample.ID)
}

// ListSamples returns samples ascending by timestamp.
func (r *TelemetryRepository) ListSamples(ctx context.Context, sessionID string, q TelemetryQuery) ([]models.TelemetrySample, error) {
	var (
		where = []string{"session_id = $1"}
		args  = []any{sessionID}
	)
	if q.From != nil {
		args = append(args, *q.From)
		where = append(where, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		where = append(where, fmt.Sprintf("recorded_at <= $%d", len(args)))
	}
	args = append(args, q.Limit)
	query := fmt.Sprintf(`
		SELECT id, session_id, recorded_at, meter_wh, power_kw, soc
		FROM telemetry_samples
		WHERE %s
		ORDER BY recorded_at ASC, id ASC
		LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.TelemetrySample
	for rows.Next() {
		var s models.TelemetrySample
		if err := rows.Scan(&s.ID, &s.SessionID, &s.RecordedAt, &s.MeterWh, &s.PowerKW, &s.SoC); err != nil {
			return nil, err
		}
		s.RecordedAt = s.RecordedAt.UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
