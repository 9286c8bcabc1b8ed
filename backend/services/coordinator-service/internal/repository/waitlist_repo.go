package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"chargehub/backend/services/coordinator-service/internal/models"
)

const (
	waitlistColumns     = `id, user_id, station_id, connector_type, position, estimated_wait_minutes, status, created_at`
	uniqueViolationCode = "23505"
)

// WaitlistRepository keeps waitlist queues. Mutations of one station/connector queue are
// serialized with a transaction-scoped advisory lock so positions stay contiguous.
type WaitlistRepository struct {
	db *sql.DB
}

// NewWaitlistRepository returns repository.
func NewWaitlistRepository(db *sql.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func scanWaitlistEntry(row rowScanner) (*models.WaitlistEntry, error) {
	var (
		e      models.WaitlistEntry
		status string
	)
	if err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.StationID,
		&e.ConnectorType,
		&e.Position,
		&e.EstimatedWaitMinutes,
		&status,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = models.WaitlistStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func lockQueue(ctx context.Context, tx *sql.Tx, stationID, connectorType string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, stationID+"|"+connectorType)
	return err
}

// EnqueueWaitlist appends the entry to the end of its queue.
func (r *WaitlistRepository) EnqueueWaitlist(ctx context.Context, entry *models.WaitlistEntry, slot time.Duration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockQueue(ctx, tx, entry.StationID, entry.ConnectorType); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE station_id = $1 AND connector_type = $2`,
		entry.StationID, entry.ConnectorType,
	).Scan(&count); err != nil {
		return err
	}
	entry.Position = count + 1
	entry.EstimatedWaitMinutes = EstimateWaitMinutes(entry.Position, slot)

	const insert = `
		INSERT INTO waitlist_entries (id, user_id, station_id, connector_type, position, estimated_wait_minutes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, insert,
		entry.ID,
		entry.UserID,
		entry.StationID,
		entry.ConnectorType,
		entry.Position,
		entry.EstimatedWaitMinutes,
		string(entry.Status),
	).Scan(&entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicate
		}
		return err
	}
	return tx.Commit()
}

// GetWaitlistEntry returns entry by id.
func (r *WaitlistRepository) GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`
	e, err := scanWaitlistEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListWaitlist returns a queue ordered by position.
func (r *WaitlistRepository) ListWaitlist(ctx context.Context, stationID, connectorType string) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE station_id = $1 AND connector_type = $2
		ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, stationID, connectorType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveWaitlistEntry deletes the entry and closes the gap it leaves.
func (r *WaitlistRepository) RemoveWaitlistEntry(ctx context.Context, id string, slot time.Duration) (*models.WaitlistEntry, error) {
	current, err := r.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockQueue(ctx, tx, current.StationID, current.ConnectorType); err != nil {
		return nil, err
	}

	removed, err := scanWaitlistEntry(tx.QueryRowContext(ctx,
		`DELETE FROM waitlist_entries WHERE id = $1 RETURNING `+waitlistColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	const shift = `
		UPDATE waitlist_entries
		SET position = position - 1,
		    estimated_wait_minutes = (position - 1) * $4
		WHERE station_id = $1 AND connector_type = $2 AND position > $3
	`
	if _, err := tx.ExecContext(ctx, shift, removed.StationID, removed.ConnectorType, removed.Position, int(slot/time.Minute)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	removed.Status = models.WaitlistRemoved
	return removed, nil
}

// MarkHeadNotified flips the first waiting entry of a queue to notified.
func (r *WaitlistRepository) MarkHeadNotified(ctx context.Context, stationID, connectorType string) (*models.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET status = 'notified'
		WHERE id = (
			SELECT id FROM waitlist_entries
			WHERE station_id = $1 AND connector_type = $2 AND status = 'waiting'
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + waitlistColumns
	e, err := scanWaitlistEntry(r.db.QueryRowContext(ctx, query, stationID, connectorType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}
