package service

import (
	"context"
	"strings"
	"time"

	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/models"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

// Unavailability reasons.
const (
	ReasonReserved = "reserved"
	ReasonOccupied = "occupied"
)

var blockingReservationStatuses = []models.ReservationStatus{models.ReservationPending, models.ReservationConfirmed}

// Availability is the answer to "is this point free for the interval".
type Availability struct {
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
}

// AvailabilityResolver decides whether a point is free, using reservations and active
// sessions as the two occupancy sources. It only reads.
type AvailabilityResolver struct {
	reservations repository.ReservationStore
	sessions     repository.SessionStore
}

// NewAvailabilityResolver builds resolver.
func NewAvailabilityResolver(reservations repository.ReservationStore, sessions repository.SessionStore) *AvailabilityResolver {
	return &AvailabilityResolver{reservations: reservations, sessions: sessions}
}

// Overlaps is the half-open interval test for [aStart,aEnd) and [bStart,bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ValidateInterval rejects empty or inverted intervals.
func ValidateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validation(apperr.CodeInvalidInterval, "start and end time are required")
	}
	if !end.After(start) {
		return apperr.Validation(apperr.CodeInvalidInterval, "end time %s must be after start time %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// IsAvailable reports whether pointID is free for [start, end).
func (a *AvailabilityResolver) IsAvailable(ctx context.Context, pointID string, start, end time.Time) (Availability, error) {
	return a.check(ctx, pointID, start, end, "")
}

// check is IsAvailable ignoring the reservation excludeID, so an update does not collide with itself.
func (a *AvailabilityResolver) check(ctx context.Context, pointID string, start, end time.Time, excludeID string) (Availability, error) {
	if strings.TrimSpace(pointID) == "" {
		return Availability{}, apperr.Validation(apperr.CodeInvalidInput, "point id is required")
	}
	if err := ValidateInterval(start, end); err != nil {
		return Availability{}, err
	}

	reservations, err := a.reservations.ListReservationsByPoint(ctx, pointID, blockingReservationStatuses)
	if err != nil {
		return Availability{}, apperr.Internal(err, "list reservations of point %s", pointID)
	}
	for _, r := range reservations {
		if r.ID == excludeID || !r.Status.Blocking() {
			continue
		}
		if Overlaps(r.StartTime, r.EndTime, start, end) {
			return Availability{Reason: ReasonReserved, ConflictID: r.ID}, nil
		}
	}

	sessions, err := a.sessions.ListActiveSessionsByPoint(ctx, pointID)
	if err != nil {
		return Availability{}, apperr.Internal(err, "list sessions of point %s", pointID)
	}
	for _, s := range sessions {
		if !s.Status.Active() {
			continue
		}
		// An active session occupies the point from its start onwards with no known end.
		if s.OccupiedFrom().Before(end) {
			return Availability{Reason: ReasonOccupied, ConflictID: s.ID}, nil
		}
	}

	return Availability{Available: true}, nil
}
