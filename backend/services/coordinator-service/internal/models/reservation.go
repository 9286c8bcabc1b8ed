package models

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

// Reservation statuses.
const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCompleted ReservationStatus = "completed"
)

// ReservationGracePeriod is how long a pending reservation waits for confirmation.
const ReservationGracePeriod = 15 * time.Minute

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCancelled, ReservationExpired, ReservationCompleted:
		return true
	}
	return false
}

// Blocking reports whether a reservation in this status occupies its point.
func (s ReservationStatus) Blocking() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Reservation claims a charging point for [StartTime, EndTime).
type Reservation struct {
	ID            string            `db:"id" json:"id"`
	UserID        string            `db:"user_id" json:"user_id"`
	StationID     string            `db:"station_id" json:"station_id"`
	PointID       string            `db:"point_id" json:"point_id"`
	ConnectorType string            `db:"connector_type" json:"connector_type"`
	StartTime     time.Time         `db:"start_time" json:"start_time"`
	EndTime       time.Time         `db:"end_time" json:"end_time"`
	Status        ReservationStatus `db:"status" json:"status"`
	ExpiresAt     time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// RefundPolicy is the informational refund tag attached to a cancellation.
type RefundPolicy string

// Refund policies.
const (
	RefundFull    RefundPolicy = "full"
	RefundPartial RefundPolicy = "partial"
)
