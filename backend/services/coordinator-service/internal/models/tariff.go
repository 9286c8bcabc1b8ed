package models

import "time"

// Tariff describes price per kWh in minor currency units.
type Tariff struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	RatePerKWh float64   `db:"rate_per_kwh" json:"rate_per_kwh"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
