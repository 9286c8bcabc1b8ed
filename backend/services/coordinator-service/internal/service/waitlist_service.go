package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/models"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

const defaultSlotEstimate = 30 * time.Minute

// WaitlistService keeps FIFO queues of users waiting for a station/connector.
type WaitlistService struct {
	store  repository.WaitlistStore
	lookup repository.Lookup
	slot   time.Duration
	clock  clock.Clock
	events emitter
	logger *zap.Logger
}

// JoinWaitlistInput queues a user.
type JoinWaitlistInput struct {
	UserID        string `json:"user_id"`
	StationID     string `json:"station_id"`
	ConnectorType string `json:"connector_type"`
}

type waitlistEvent struct {
	EntryID              string                `json:"entry_id"`
	UserID               string                `json:"user_id"`
	StationID            string                `json:"station_id"`
	ConnectorType        string                `json:"connector_type"`
	Position             int                   `json:"position"`
	EstimatedWaitMinutes int                   `json:"estimated_wait_minutes"`
	Status               models.WaitlistStatus `json:"status"`
	Message              string                `json:"message,omitempty"`
}

func newWaitlistEvent(e *models.WaitlistEntry) waitlistEvent {
	return waitlistEvent{
		EntryID:              e.ID,
		UserID:               e.UserID,
		StationID:            e.StationID,
		ConnectorType:        e.ConnectorType,
		Position:             e.Position,
		EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		Status:               e.Status,
	}
}

// NewWaitlistService builds service. slot is the per-position wait estimate.
func NewWaitlistService(
	store repository.WaitlistStore,
	lookup repository.Lookup,
	publisher events.Publisher,
	clk clock.Clock,
	slot time.Duration,
	logger *zap.Logger,
) *WaitlistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slot <= 0 {
		slot = defaultSlotEstimate
	}
	clk = orDefault(clk)
	return &WaitlistService{
		store:  store,
		lookup: lookup,
		slot:   slot,
		clock:  clk,
		events: emitter{publisher: publisher, clock: clk, logger: logger},
		logger: logger,
	}
}

// JoinWaitlist appends the user to the end of the queue. A user holds at most one entry.
func (s *WaitlistService) JoinWaitlist(ctx context.Context, input JoinWaitlistInput) (*models.WaitlistEntry, error) {
	if err := requireFields(
		"user_id", input.UserID,
		"station_id", input.StationID,
		"connector_type", input.ConnectorType,
	); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "users", "id", input.UserID, apperr.CodeUserNotFound); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "stations", "id", input.StationID, apperr.CodeStationNotFound); err != nil {
		return nil, err
	}

	entry := &models.WaitlistEntry{
		ID:            idGenerator(),
		UserID:        input.UserID,
		StationID:     input.StationID,
		ConnectorType: input.ConnectorType,
		Status:        models.WaitlistWaiting,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.EnqueueWaitlist(ctx, entry, s.slot); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeAlreadyWaitlisted, "user %s is already on a waitlist", input.UserID)
		}
		return nil, apperr.Internal(err, "join waitlist")
	}

	s.logger.Info("waitlist joined",
		zap.String("entry_id", entry.ID),
		zap.String("station_id", entry.StationID),
		zap.Int("position", entry.Position),
	)
	s.events.emit(ctx, events.TopicWaitlist, events.WaitlistJoined, newWaitlistEvent(entry))
	return entry, nil
}

// GetWaitlistEntry returns entry by id.
func (s *WaitlistService) GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	entry, err := s.store.GetWaitlistEntry(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeWaitlistNotFound, "waitlist entry", id)
	}
	return entry, nil
}

// ListWaitlist returns a queue ordered by position.
func (s *WaitlistService) ListWaitlist(ctx context.Context, stationID, connectorType string) ([]models.WaitlistEntry, error) {
	if err := requireFields("station_id", stationID, "connector_type", connectorType); err != nil {
		return nil, err
	}
	out, err := s.store.ListWaitlist(ctx, stationID, connectorType)
	if err != nil {
		return nil, apperr.Internal(err, "list waitlist")
	}
	return out, nil
}

// RemoveFromWaitlist deletes an entry; the entries behind it move up one position.
func (s *WaitlistService) RemoveFromWaitlist(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	removed, err := s.store.RemoveWaitlistEntry(ctx, id, s.slot)
	if err != nil {
		return nil, storeErr(err, apperr.CodeWaitlistNotFound, "waitlist entry", id)
	}
	s.logger.Info("waitlist entry removed", zap.String("entry_id", id))
	s.events.emit(ctx, events.TopicWaitlist, events.WaitlistRemoved, newWaitlistEvent(removed))
	return removed, nil
}

// NotifyNext marks the first waiting user of a queue as notified.
func (s *WaitlistService) NotifyNext(ctx context.Context, stationID, connectorType string) (*models.WaitlistEntry, error) {
	entry, err := s.store.MarkHeadNotified(ctx, stationID, connectorType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeWaitlistNotFound, "nobody is waiting for %s at station %s", connectorType, stationID)
		}
		return nil, apperr.Internal(err, "notify waitlist")
	}

	payload := newWaitlistEvent(entry)
	payload.Message = "a charging slot is available"
	s.logger.Info("waitlist user notified", zap.String("entry_id", entry.ID), zap.String("user_id", entry.UserID))
	s.events.emit(ctx, events.TopicNotifications, events.NotificationCreated, payload)
	return entry, nil
}

// SlotReleased implements SlotReleaseNotifier. An empty queue is not an error.
func (s *WaitlistService) SlotReleased(ctx context.Context, stationID, connectorType string) error {
	_, err := s.NotifyNext(ctx, stationID, connectorType)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	return err
}
