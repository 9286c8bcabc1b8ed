package models

import "time"

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

// Waitlist statuses.
const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistRemoved  WaitlistStatus = "removed"
)

// WaitlistEntry queues a user for a station/connector with no free slot.
type WaitlistEntry struct {
	ID                   string         `db:"id" json:"id"`
	UserID               string         `db:"user_id" json:"user_id"`
	StationID            string         `db:"station_id" json:"station_id"`
	ConnectorType        string         `db:"connector_type" json:"connector_type"`
	Position             int            `db:"position" json:"position"`
	EstimatedWaitMinutes int            `db:"estimated_wait_minutes" json:"estimated_wait_minutes"`
	Status               WaitlistStatus `db:"status" json:"status"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}
