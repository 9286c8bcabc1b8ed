package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"chargehub/backend/services/coordinator-service/internal/models"
)

const sessionColumns = `id, user_id, point_id, vehicle_id, reservation_id, start_meter_wh, end_meter_wh, status, started_at, ended_at, energy_kwh, cost, stop_reason, metadata, created_at, updated_at`

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s        models.Session
		status   string
		metadata []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PointID,
		&s.VehicleID,
		&s.ReservationID,
		&s.StartMeterWh,
		&s.EndMeterWh,
		&status,
		&s.StartedAt,
		&s.EndedAt,
		&s.EnergyKWh,
		&s.Cost,
		&s.StopReason,
		&metadata,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.StartedAt, s.EndedAt = utcPtr(s.StartedAt), utcPtr(s.EndedAt)
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]models.Session, error) {
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession inserts a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO charging_sessions (id, user_id, point_id, vehicle_id, reservation_id, status, energy_kwh, cost, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.PointID,
		s.VehicleID,
		s.ReservationID,
		string(s.Status),
		metadata,
		s.CreatedAt,
	)
	if err != nil {
		return err
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

// GetSession returns session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSessionsByUser returns last N sessions for user.
func (r *SessionRepository) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// ListActiveSessionsByPoint returns sessions still occupying a point.
func (r *SessionRepository) ListActiveSessionsByPoint(ctx context.Context, pointID string) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE point_id = $1 AND status = ANY($2)
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, pointID, sessionStatusStrings(models.ActiveSessionStatuses))
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// StartSession moves an initiated session to charging.
func (r *SessionRepository) StartSession(ctx context.Context, id string, startMeterWh int64, startedAt time.Time) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET status = 'charging', start_meter_wh = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'initiated'
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, startMeterWh, startedAt))
}

// TransitionSession moves a session between two statuses.
func (r *SessionRepository) TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, string(from), string(to), at))
}

// FinishSession finalizes a session that is still in f.From.
func (r *SessionRepository) FinishSession(ctx context.Context, id string, f SessionFinish) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET status = 'finished',
		    end_meter_wh = $2,
		    ended_at = $3,
		    energy_kwh = $4,
		    cost = $5,
		    stop_reason = $6,
		    updated_at = $3
		WHERE id = $1 AND status = $7 AND status <> 'finished'
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, f.EndMeterWh, f.EndedAt, f.EnergyKWh, f.Cost, f.StopReason, string(f.From)))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
