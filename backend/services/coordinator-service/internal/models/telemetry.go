package models

import "time"

// TelemetrySample represents a single meter reading of a session.
type TelemetrySample struct {
	ID         int64     `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	MeterWh    int64     `db:"meter_wh" json:"meter_wh"`
	PowerKW    *float64  `db:"power_kw" json:"power_kw,omitempty"`
	SoC        *float64  `db:"soc" json:"soc,omitempty"`
}
