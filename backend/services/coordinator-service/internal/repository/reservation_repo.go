package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargehub/backend/services/coordinator-service/internal/models"
)

const reservationColumns = `id, user_id, station_id, point_id, connector_type, start_time, end_time, status, expires_at, created_at, updated_at`

// ReservationRepository handles persistence of reservations.
type ReservationRepository struct {
	db *sql.DB
}

// NewReservationRepository returns repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var status string
	if err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.StationID,
		&r.PointID,
		&r.ConnectorType,
		&r.StartTime,
		&r.EndTime,
		&status,
		&r.ExpiresAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)
	r.StartTime, r.EndTime = r.StartTime.UTC(), r.EndTime.UTC()
	r.ExpiresAt, r.CreatedAt, r.UpdatedAt = r.ExpiresAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]models.Reservation, error) {
	defer rows.Close()
	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReservation inserts a new reservation.
func (r *ReservationRepository) CreateReservation(ctx context.Context, res *models.Reservation) error {
	const query = `
		INSERT INTO reservations (id, user_id, station_id, point_id, connector_type, start_time, end_time, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		res.ID,
		res.UserID,
		res.StationID,
		res.PointID,
		res.ConnectorType,
		res.StartTime,
		res.EndTime,
		string(res.Status),
		res.ExpiresAt,
		res.CreatedAt,
	)
	if err != nil {
		return err
	}
	res.UpdatedAt = res.CreatedAt
	return nil
}

// GetReservation returns reservation by id.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListReservationsByUser returns last N reservations of a user.
func (r *ReservationRepository) ListReservationsByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListReservationsByPoint returns reservations on a point in the given statuses.
func (r *ReservationRepository) ListReservationsByPoint(ctx context.Context, pointID string, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE point_id = $1 AND status = ANY($2)
		ORDER BY start_time`
	rows, err := r.db.QueryContext(ctx, query, pointID, reservationStatusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListExpiredPending returns pending reservations whose grace window has elapsed.
func (r *ReservationRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// TransitionReservation moves a reservation to `to` only if its status is one of `from`.
func (r *ReservationRepository) TransitionReservation(ctx context.Context, id string, from []models.ReservationStatus, to models.ReservationStatus, at time.Time) (bool, error) {
	const query = `
		UPDATE reservations
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = ANY($2)
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, reservationStatusStrings(from), string(to), at))
}

// ExpireReservation is the sweep's compare-and-swap: pending and overdue become expired.
func (r *ReservationRepository) ExpireReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `
		UPDATE reservations
		SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status = 'pending' AND expires_at <= $2
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, now))
}

// UpdateReservationInterval rewrites the interval of a non-terminal reservation.
func (r *ReservationRepository) UpdateReservationInterval(ctx context.Context, id string, start, end, at time.Time) (bool, error) {
	const query = `
		UPDATE reservations
		SET start_time = $2, end_time = $3, updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, start, end, at))
}

// DeleteReservation removes a reservation row.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	ok, err := affectedOne(r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
