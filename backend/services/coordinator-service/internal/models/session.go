package models

import "time"

// SessionStatus is the lifecycle state of a charging session.
type SessionStatus string

// Session statuses.
const (
	SessionInitiated SessionStatus = "initiated"
	SessionCharging  SessionStatus = "charging"
	SessionPaused    SessionStatus = "paused"
	SessionFinished  SessionStatus = "finished"
)

// ActiveSessionStatuses occupy a point.
var ActiveSessionStatuses = []SessionStatus{SessionInitiated, SessionCharging, SessionPaused}

// Active reports whether the session still occupies its point.
func (s SessionStatus) Active() bool {
	return s == SessionInitiated || s == SessionCharging || s == SessionPaused
}

// Session represents a charging session on a point.
type Session struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	PointID       string         `db:"point_id" json:"point_id"`
	VehicleID     *string        `db:"vehicle_id" json:"vehicle_id,omitempty"`
	ReservationID *string        `db:"reservation_id" json:"reservation_id,omitempty"`
	StartMeterWh  *int64         `db:"start_meter_wh" json:"start_meter_wh,omitempty"`
	EndMeterWh    *int64         `db:"end_meter_wh" json:"end_meter_wh,omitempty"`
	Status        SessionStatus  `db:"status" json:"status"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	EndedAt       *time.Time     `db:"ended_at" json:"ended_at,omitempty"`
	EnergyKWh     float64        `db:"energy_kwh" json:"energy_kwh"`
	Cost          int64          `db:"cost" json:"cost"`
	StopReason    *string        `db:"stop_reason" json:"stop_reason,omitempty"`
	Metadata      map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// OccupiedFrom is the start of the session's open-ended occupancy window.
func (s *Session) OccupiedFrom() time.Time {
	if s.StartedAt != nil {
		return *s.StartedAt
	}
	return s.CreatedAt
}

// SessionEvent is a derived lifecycle marker.
type SessionEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}
