package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/models"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

const (
	defaultRefundFullThreshold = 2 * time.Hour
	defaultSweepBatchSize      = 500
	defaultListLimit           = 50
	maxListLimit               = 500
)

// SlotReleaseNotifier is told when a reservation stops blocking its point.
type SlotReleaseNotifier interface {
	SlotReleased(ctx context.Context, stationID, connectorType string) error
}

// ReservationOptions tunes ReservationsService.
type ReservationOptions struct {
	// RefundFullThreshold is the minimum lead time before start for a full refund.
	RefundFullThreshold time.Duration
	SweepBatchSize      int
	Releases            SlotReleaseNotifier
}

// ReservationsService owns the reservation lifecycle.
type ReservationsService struct {
	store        repository.ReservationStore
	lookup       repository.Lookup
	availability *AvailabilityResolver
	releases     SlotReleaseNotifier
	clock        clock.Clock
	events       emitter
	refundFull   time.Duration
	batchSize    int
	logger       *zap.Logger
}

// CreateReservationInput is the request to hold a point.
type CreateReservationInput struct {
	UserID        string    `json:"user_id"`
	StationID     string    `json:"station_id"`
	PointID       string    `json:"point_id"`
	ConnectorType string    `json:"connector_type"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// CancelResult carries the cancelled reservation and its refund tag.
type CancelResult struct {
	Reservation *models.Reservation `json:"reservation"`
	Refund      models.RefundPolicy `json:"refund"`
}

type reservationEvent struct {
	ReservationID string                   `json:"reservation_id"`
	UserID        string                   `json:"user_id"`
	StationID     string                   `json:"station_id"`
	PointID       string                   `json:"point_id"`
	ConnectorType string                   `json:"connector_type"`
	StartTime     time.Time                `json:"start_time"`
	EndTime       time.Time                `json:"end_time"`
	Status        models.ReservationStatus `json:"status"`
	ExpiresAt     time.Time                `json:"expires_at"`
	Refund        models.RefundPolicy      `json:"refund,omitempty"`
}

func newReservationEvent(r *models.Reservation) reservationEvent {
	return reservationEvent{
		ReservationID: r.ID,
		UserID:        r.UserID,
		StationID:     r.StationID,
		PointID:       r.PointID,
		ConnectorType: r.ConnectorType,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        r.Status,
		ExpiresAt:     r.ExpiresAt,
	}
}

// NewReservationsService builds service.
func NewReservationsService(
	store repository.ReservationStore,
	lookup repository.Lookup,
	availability *AvailabilityResolver,
	publisher events.Publisher,
	clk clock.Clock,
	opts ReservationOptions,
	logger *zap.Logger,
) *ReservationsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk = orDefault(clk)
	if opts.RefundFullThreshold <= 0 {
		opts.RefundFullThreshold = defaultRefundFullThreshold
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = defaultSweepBatchSize
	}
	return &ReservationsService{
		store:        store,
		lookup:       lookup,
		availability: availability,
		releases:     opts.Releases,
		clock:        clk,
		events:       emitter{publisher: publisher, clock: clk, logger: logger},
		refundFull:   opts.RefundFullThreshold,
		batchSize:    opts.SweepBatchSize,
		logger:       logger,
	}
}

// Availability exposes the resolver used for reservation checks.
func (s *ReservationsService) Availability() *AvailabilityResolver {
	return s.availability
}

// CreateReservation places a pending hold that must be confirmed within the grace period.
func (s *ReservationsService) CreateReservation(ctx context.Context, input CreateReservationInput) (*models.Reservation, error) {
	if err := requireFields(
		"user_id", input.UserID,
		"station_id", input.StationID,
		"point_id", input.PointID,
		"connector_type", input.ConnectorType,
	); err != nil {
		return nil, err
	}
	start, end := clock.Normalize(input.StartTime), clock.Normalize(input.EndTime)
	if err := ValidateInterval(start, end); err != nil {
		return nil, err
	}

	if err := requireExists(ctx, s.lookup, "users", "id", input.UserID, apperr.CodeUserNotFound); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "stations", "id", input.StationID, apperr.CodeStationNotFound); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "charging_points", "id", input.PointID, apperr.CodePointNotFound); err != nil {
		return nil, err
	}

	avail, err := s.availability.IsAvailable(ctx, input.PointID, start, end)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, apperr.Conflict(apperr.CodeSlotUnavailable, "point %s is %s in the requested interval", input.PointID, avail.Reason)
	}

	now := s.clock.Now()
	res := &models.Reservation{
		ID:            idGenerator(),
		UserID:        input.UserID,
		StationID:     input.StationID,
		PointID:       input.PointID,
		ConnectorType: input.ConnectorType,
		StartTime:     start,
		EndTime:       end,
		Status:        models.ReservationPending,
		ExpiresAt:     now.Add(models.ReservationGracePeriod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateReservation(ctx, res); err != nil {
		return nil, apperr.Internal(err, "create reservation")
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("point_id", res.PointID),
		zap.Time("expires_at", res.ExpiresAt),
	)
	s.events.emit(ctx, events.TopicReservations, events.ReservationCreated, newReservationEvent(res))
	return res, nil
}

// GetReservation returns reservation by id.
func (s *ReservationsService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeReservationNotFound, "reservation", id)
	}
	return res, nil
}

// ListReservationsByUser returns the user's reservations, newest first.
func (s *ReservationsService) ListReservationsByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "user_id is required")
	}
	out, err := s.store.ListReservationsByUser(ctx, userID, clampLimit(limit, defaultListLimit, maxListLimit))
	if err != nil {
		return nil, apperr.Internal(err, "list reservations of user %s", userID)
	}
	return out, nil
}

// ConfirmReservation moves a pending reservation to confirmed while its grace period lasts.
func (s *ReservationsService) ConfirmReservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != models.ReservationPending {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is %s, only pending reservations can be confirmed", id, res.Status)
	}
	now := s.clock.Now()
	if !now.Before(res.ExpiresAt) {
		return nil, apperr.InvalidState(apperr.CodeReservationExpired, "reservation %s expired at %s", id, res.ExpiresAt.Format(time.RFC3339))
	}

	ok, err := s.store.TransitionReservation(ctx, id, []models.ReservationStatus{models.ReservationPending}, models.ReservationConfirmed, now)
	if err != nil {
		return nil, apperr.Internal(err, "confirm reservation %s", id)
	}
	if !ok {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is no longer pending", id)
	}
	res.Status = models.ReservationConfirmed
	res.UpdatedAt = now

	s.logger.Info("reservation confirmed", zap.String("reservation_id", id))
	s.events.emit(ctx, events.TopicReservations, events.ReservationConfirmed, newReservationEvent(res))
	return res, nil
}

// UpdateReservation moves a live reservation to a new interval. The expiry deadline is kept.
func (s *ReservationsService) UpdateReservation(ctx context.Context, id string, start, end time.Time) (*models.Reservation, error) {
	start, end = clock.Normalize(start), clock.Normalize(end)
	if err := ValidateInterval(start, end); err != nil {
		return nil, err
	}
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is %s and cannot be changed", id, res.Status)
	}

	avail, err := s.availability.check(ctx, res.PointID, start, end, res.ID)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, apperr.Conflict(apperr.CodeSlotUnavailable, "point %s is %s in the requested interval", res.PointID, avail.Reason)
	}

	now := s.clock.Now()
	ok, err := s.store.UpdateReservationInterval(ctx, id, start, end, now)
	if err != nil {
		return nil, apperr.Internal(err, "update reservation %s", id)
	}
	if !ok {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s can no longer be changed", id)
	}
	res.StartTime, res.EndTime, res.UpdatedAt = start, end, now
	s.logger.Info("reservation updated", zap.String("reservation_id", id))
	return res, nil
}

// RefundPolicyFor tags a cancellation: full when made at least threshold before start.
func RefundPolicyFor(start, now time.Time, threshold time.Duration) models.RefundPolicy {
	if start.Sub(now) >= threshold {
		return models.RefundFull
	}
	return models.RefundPartial
}

// CancelReservation cancels a pending or confirmed reservation.
func (s *ReservationsService) CancelReservation(ctx context.Context, id string) (*CancelResult, error) {
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Status.Blocking() {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is %s and cannot be cancelled", id, res.Status)
	}

	now := s.clock.Now()
	ok, err := s.store.TransitionReservation(ctx, id, blockingReservationStatuses, models.ReservationCancelled, now)
	if err != nil {
		return nil, apperr.Internal(err, "cancel reservation %s", id)
	}
	if !ok {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is no longer active", id)
	}
	res.Status = models.ReservationCancelled
	res.UpdatedAt = now
	refund := RefundPolicyFor(res.StartTime, now, s.refundFull)

	payload := newReservationEvent(res)
	payload.Refund = refund
	s.logger.Info("reservation cancelled", zap.String("reservation_id", id), zap.String("refund", string(refund)))
	s.events.emit(ctx, events.TopicReservations, events.ReservationCancelled, payload)
	s.releaseSlot(ctx, res)

	return &CancelResult{Reservation: res, Refund: refund}, nil
}

// CompleteReservation closes a confirmed reservation once the session that used it finishes.
func (s *ReservationsService) CompleteReservation(ctx context.Context, id string) error {
	ok, err := s.store.TransitionReservation(ctx, id, []models.ReservationStatus{models.ReservationConfirmed}, models.ReservationCompleted, s.clock.Now())
	if err != nil {
		return apperr.Internal(err, "complete reservation %s", id)
	}
	if !ok {
		return apperr.InvalidState(apperr.CodeInvalidTransition, "reservation %s is not confirmed", id)
	}
	s.logger.Info("reservation completed", zap.String("reservation_id", id))
	return nil
}

// DeleteReservation removes the row regardless of status.
func (s *ReservationsService) DeleteReservation(ctx context.Context, id string) error {
	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return storeErr(err, apperr.CodeReservationNotFound, "reservation", id)
	}
	s.logger.Info("reservation deleted", zap.String("reservation_id", id))
	return nil
}

// AutoCancelLateReservations expires every pending reservation whose deadline has passed
// and returns how many this call expired. Each row is expired with a conditional update,
// so overlapping sweeps never expire or announce the same reservation twice.
func (s *ReservationsService) AutoCancelLateReservations(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired := 0
	var errs []error

	for {
		overdue, err := s.store.ListExpiredPending(ctx, now, s.batchSize)
		if err != nil {
			errs = append(errs, err)
			break
		}
		progressed := 0
		for i := range overdue {
			res := overdue[i]
			ok, err := s.store.ExpireReservation(ctx, res.ID, now)
			if err != nil {
				s.logger.Warn("failed to expire reservation", zap.String("reservation_id", res.ID), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if !ok {
				continue
			}
			progressed++
			res.Status = models.ReservationExpired
			res.UpdatedAt = now
			s.events.emit(ctx, events.TopicReservations, events.ReservationExpired, newReservationEvent(&res))
			s.releaseSlot(ctx, &res)
		}
		expired += progressed
		if len(overdue) < s.batchSize || progressed == 0 || ctx.Err() != nil {
			break
		}
	}

	if expired > 0 {
		s.logger.Info("expired late reservations", zap.Int("count", expired))
	}
	if len(errs) > 0 {
		return expired, apperr.Internal(errors.Join(errs...), "expire late reservations")
	}
	return expired, nil
}

func (s *ReservationsService) releaseSlot(ctx context.Context, res *models.Reservation) {
	if s.releases == nil {
		return
	}
	if err := s.releases.SlotReleased(ctx, res.StationID, res.ConnectorType); err != nil {
		s.logger.Warn("waitlist notification failed",
			zap.String("station_id", res.StationID),
			zap.String("connector_type", res.ConnectorType),
			zap.Error(err),
		)
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
