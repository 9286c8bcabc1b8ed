package repository

import (
	"context"
	"errors"
	"time"

	"chargehub/backend/services/coordinator-service/internal/models"
)

// ErrNotFound indicates a missing row.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a uniqueness violation.
var ErrDuplicate = errors.New("repository: duplicate")

// ReservationStore persists reservations. Transition methods are conditional updates:
// they report false when the row is not in one of the expected states.
type ReservationStore interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error)
	ListReservationsByPoint(ctx context.Context, pointID string, statuses []models.ReservationStatus) ([]models.Reservation, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	TransitionReservation(ctx context.Context, id string, from []models.ReservationStatus, to models.ReservationStatus, at time.Time) (bool, error)
	ExpireReservation(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateReservationInterval(ctx context.Context, id string, start, end, at time.Time) (bool, error)
	DeleteReservation(ctx context.Context, id string) error
}

// SessionFinish carries the values written when a session stops. The update applies only
// while the session is still in From, the status the charge was computed against.
type SessionFinish struct {
	From       models.SessionStatus
	EndMeterWh int64
	EndedAt    time.Time
	EnergyKWh  float64
	Cost       int64
	StopReason string
}

// SessionStore persists charging sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.Session, error)
	ListActiveSessionsByPoint(ctx context.Context, pointID string) ([]models.Session, error)
	StartSession(ctx context.Context, id string, startMeterWh int64, startedAt time.Time) (bool, error)
	TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error)
	FinishSession(ctx context.Context, id string, f SessionFinish) (bool, error)
}

// TelemetryQuery bounds a telemetry read. From and To are inclusive.
type TelemetryQuery struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// TelemetryStore is the append-only sample log.
type TelemetryStore interface {
	AppendSample(ctx context.Context, sample *models.TelemetrySample) error
	ListSamples(ctx context.Context, sessionID string, q TelemetryQuery) ([]models.TelemetrySample, error)
}

// WaitlistStore keeps per station/connector queues with contiguous positions.
type WaitlistStore interface {
	// EnqueueWaitlist appends the entry at the end of its queue and fills Position,
	// EstimatedWaitMinutes and CreatedAt. Returns ErrDuplicate if the user already has an entry.
	EnqueueWaitlist(ctx context.Context, entry *models.WaitlistEntry, slot time.Duration) error
	GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, stationID, connectorType string) ([]models.WaitlistEntry, error)
	// RemoveWaitlistEntry deletes the entry and shifts later positions up by one.
	RemoveWaitlistEntry(ctx context.Context, id string, slot time.Duration) (*models.WaitlistEntry, error)
	// MarkHeadNotified flips the first waiting entry of a queue to notified.
	MarkHeadNotified(ctx context.Context, stationID, connectorType string) (*models.WaitlistEntry, error)
}

// Lookup answers referential existence checks.
type Lookup interface {
	Exists(ctx context.Context, table, column, value string) (bool, error)
}

// TariffStore returns the active tariff.
type TariffStore interface {
	GetActiveTariff(ctx context.Context) (*models.Tariff, error)
}

func reservationStatusStrings(statuses []models.ReservationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func sessionStatusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

// EstimateWaitMinutes is the wait estimate for a queue position given a per-slot duration.
func EstimateWaitMinutes(position int, slot time.Duration) int {
	if position <= 0 || slot <= 0 {
		return 0
	}
	return position * int(slot/time.Minute)
}
