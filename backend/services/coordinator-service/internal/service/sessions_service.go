package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/models"
	redisstore "chargehub/backend/services/coordinator-service/internal/redis"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

const (
	defaultTelemetryLimit = 100
	maxTelemetryLimit     = 1000
	defaultStopReason     = "requested"
	notePausedAlready     = "already paused"
	stopAttempts          = 3
)

// RateSource prices energy.
type RateSource interface {
	RatePerKWh(ctx context.Context) (float64, error)
}

// ActiveSessionCache keeps the session occupying each point.
type ActiveSessionCache interface {
	Save(ctx context.Context, session redisstore.ActiveSession) error
	Get(ctx context.Context, pointID string) (*redisstore.ActiveSession, bool, error)
	Delete(ctx context.Context, pointID string) error
}

// ReservationCompleter closes the reservation a finished session was booked under.
type ReservationCompleter interface {
	CompleteReservation(ctx context.Context, id string) error
}

// SessionsDeps wires SessionsService. Cache and Reservations are optional.
type SessionsDeps struct {
	Sessions     repository.SessionStore
	Telemetry    repository.TelemetryStore
	Lookup       repository.Lookup
	Rates        RateSource
	Cache        ActiveSessionCache
	Reservations ReservationCompleter
	Publisher    events.Publisher
	Clock        clock.Clock
	Logger       *zap.Logger
}

// SessionsService drives charging sessions through initiated, charging, paused and finished.
type SessionsService struct {
	sessions     repository.SessionStore
	telemetry    repository.TelemetryStore
	lookup       repository.Lookup
	rates        RateSource
	cache        ActiveSessionCache
	reservations ReservationCompleter
	clock        clock.Clock
	events       emitter
	logger       *zap.Logger
}

// InitiateSessionInput requests a session on a point.
type InitiateSessionInput struct {
	PointID       string `json:"point_id"`
	UserID        string `json:"user_id"`
	VehicleID     string `json:"vehicle_id,omitempty"`
	AuthMethod    string `json:"auth_method,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// MeterReadingInput is one telemetry push.
type MeterReadingInput struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	MeterWh   int64     `json:"meter_wh"`
	PowerKW   *float64  `json:"power_kw,omitempty"`
	SoC       *float64  `json:"soc,omitempty"`
}

// TelemetryFilter bounds GetTelemetry.
type TelemetryFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// PauseResult reports the session after a pause request. Note is set when it was a no-op.
type PauseResult struct {
	Session *models.Session `json:"session"`
	Note    string          `json:"note,omitempty"`
}

type sessionEvent struct {
	SessionID     string               `json:"session_id"`
	PointID       string               `json:"point_id"`
	UserID        string               `json:"user_id"`
	Status        models.SessionStatus `json:"status"`
	ReservationID *string              `json:"reservation_id,omitempty"`
	StartMeterWh  *int64               `json:"start_meter_wh,omitempty"`
	EndMeterWh    *int64               `json:"end_meter_wh,omitempty"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	EndedAt       *time.Time           `json:"ended_at,omitempty"`
	EnergyKWh     float64              `json:"energy_kwh,omitempty"`
	Cost          int64                `json:"cost,omitempty"`
	StopReason    *string              `json:"stop_reason,omitempty"`
}

func newSessionEvent(s *models.Session) sessionEvent {
	return sessionEvent{
		SessionID:     s.ID,
		PointID:       s.PointID,
		UserID:        s.UserID,
		Status:        s.Status,
		ReservationID: s.ReservationID,
		StartMeterWh:  s.StartMeterWh,
		EndMeterWh:    s.EndMeterWh,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		EnergyKWh:     s.EnergyKWh,
		Cost:          s.Cost,
		StopReason:    s.StopReason,
	}
}

type meterReadingEvent struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	MeterWh   int64     `json:"meter_wh"`
	PowerKW   *float64  `json:"power_kw,omitempty"`
	SoC       *float64  `json:"soc,omitempty"`
}

type userNotification struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
	Message   string  `json:"message"`
	EnergyKWh float64 `json:"energy_kwh"`
	Cost      int64   `json:"cost"`
}

// NewSessionsService builds service.
func NewSessionsService(deps SessionsDeps) *SessionsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := orDefault(deps.Clock)
	return &SessionsService{
		sessions:     deps.Sessions,
		telemetry:    deps.Telemetry,
		lookup:       deps.Lookup,
		rates:        deps.Rates,
		cache:        deps.Cache,
		reservations: deps.Reservations,
		clock:        clk,
		events:       emitter{publisher: deps.Publisher, clock: clk, logger: logger},
		logger:       logger,
	}
}

// InitiateSession records a new session on a point.
func (s *SessionsService) InitiateSession(ctx context.Context, input InitiateSessionInput) (*models.Session, error) {
	if err := requireFields("point_id", input.PointID, "user_id", input.UserID); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "charging_points", "id", input.PointID, apperr.CodePointNotFound); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, s.lookup, "users", "id", input.UserID, apperr.CodeUserNotFound); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &models.Session{
		ID:            idGenerator(),
		UserID:        input.UserID,
		PointID:       input.PointID,
		VehicleID:     strPtr(strings.TrimSpace(input.VehicleID)),
		ReservationID: strPtr(strings.TrimSpace(input.ReservationID)),
		Status:        models.SessionInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if input.AuthMethod != "" {
		session.Metadata = map[string]any{"auth_method": input.AuthMethod}
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, apperr.Internal(err, "create session")
	}

	s.logger.Info("session initiated", zap.String("session_id", session.ID), zap.String("point_id", session.PointID))
	s.cacheActive(ctx, session)
	s.events.emit(ctx, events.TopicSessions, events.SessionInitiated, newSessionEvent(session))
	return session, nil
}

// StartSession moves an initiated session to charging. A nil meter value starts at zero.
func (s *SessionsService) StartSession(ctx context.Context, id string, startMeterWh *int64) (*models.Session, error) {
	meter := int64(0)
	if startMeterWh != nil {
		meter = *startMeterWh
	}
	if meter < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "start meter value must not be negative")
	}
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionInitiated {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is %s, only initiated sessions can start", id, session.Status)
	}

	now := s.clock.Now()
	ok, err := s.sessions.StartSession(ctx, id, meter, now)
	if err != nil {
		return nil, apperr.Internal(err, "start session %s", id)
	}
	if !ok {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is no longer initiated", id)
	}
	session.Status = models.SessionCharging
	session.StartMeterWh = &meter
	session.StartedAt = &now
	session.UpdatedAt = now

	s.logger.Info("session started", zap.String("session_id", id), zap.Int64("start_meter_wh", meter))
	s.cacheActive(ctx, session)
	s.events.emit(ctx, events.TopicSessions, events.SessionStarted, newSessionEvent(session))
	return session, nil
}

// PushMeterReading appends a telemetry sample. Readings for finished sessions are rejected.
func (s *SessionsService) PushMeterReading(ctx context.Context, input MeterReadingInput) (*models.TelemetrySample, error) {
	if input.MeterWh < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "meter value must not be negative")
	}
	if input.SoC != nil && (*input.SoC < 0 || *input.SoC > 100) {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "soc must be between 0 and 100")
	}
	session, err := s.GetSession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionFinished {
		return nil, apperr.InvalidState(apperr.CodeSessionFinished, "session %s is finished", input.SessionID)
	}

	ts := input.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	sample := &models.TelemetrySample{
		SessionID:  input.SessionID,
		RecordedAt: clock.Normalize(ts),
		MeterWh:    input.MeterWh,
		PowerKW:    input.PowerKW,
		SoC:        input.SoC,
	}
	if err := s.telemetry.AppendSample(ctx, sample); err != nil {
		return nil, apperr.Internal(err, "append telemetry for session %s", input.SessionID)
	}

	s.events.emit(ctx, events.TopicTelemetry, events.MeterReading, meterReadingEvent{
		SessionID: sample.SessionID,
		Timestamp: sample.RecordedAt,
		MeterWh:   sample.MeterWh,
		PowerKW:   sample.PowerKW,
		SoC:       sample.SoC,
	})
	return sample, nil
}

// GetTelemetry returns samples of a session in timestamp order.
func (s *SessionsService) GetTelemetry(ctx context.Context, id string, filter TelemetryFilter) ([]models.TelemetrySample, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperr.Validation(apperr.CodeInvalidInterval, "from must not be after to")
	}
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}
	samples, err := s.telemetry.ListSamples(ctx, id, repository.TelemetryQuery{
		From:  filter.From,
		To:    filter.To,
		Limit: clampLimit(filter.Limit, defaultTelemetryLimit, maxTelemetryLimit),
	})
	if err != nil {
		return nil, apperr.Internal(err, "list telemetry for session %s", id)
	}
	return samples, nil
}

// PauseSession suspends charging. Pausing a paused session is a no-op reported via Note.
func (s *SessionsService) PauseSession(ctx context.Context, id string) (*PauseResult, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionPaused {
		return &PauseResult{Session: session, Note: notePausedAlready}, nil
	}
	if session.Status != models.SessionCharging {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is %s, only charging sessions can pause", id, session.Status)
	}

	now := s.clock.Now()
	ok, err := s.sessions.TransitionSession(ctx, id, models.SessionCharging, models.SessionPaused, now)
	if err != nil {
		return nil, apperr.Internal(err, "pause session %s", id)
	}
	if !ok {
		// Lost a race: a concurrent pause is still a success for this caller.
		current, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == models.SessionPaused {
			return &PauseResult{Session: current, Note: notePausedAlready}, nil
		}
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is %s", id, current.Status)
	}
	session.Status = models.SessionPaused
	session.UpdatedAt = now

	s.logger.Info("session paused", zap.String("session_id", id))
	s.cacheActive(ctx, session)
	s.events.emit(ctx, events.TopicSessions, events.SessionPaused, newSessionEvent(session))
	return &PauseResult{Session: session}, nil
}

// ResumeSession continues a paused session.
func (s *SessionsService) ResumeSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaused {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is %s, only paused sessions can resume", id, session.Status)
	}

	now := s.clock.Now()
	ok, err := s.sessions.TransitionSession(ctx, id, models.SessionPaused, models.SessionCharging, now)
	if err != nil {
		return nil, apperr.Internal(err, "resume session %s", id)
	}
	if !ok {
		return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s is no longer paused", id)
	}
	session.Status = models.SessionCharging
	session.UpdatedAt = now

	s.logger.Info("session resumed", zap.String("session_id", id))
	s.cacheActive(ctx, session)
	s.events.emit(ctx, events.TopicSessions, events.SessionResumed, newSessionEvent(session))
	return session, nil
}

// StopSession finishes a session, computing energy and cost from the meter delta.
func (s *SessionsService) StopSession(ctx context.Context, id, reason string, endMeterWh int64) (*models.Session, error) {
	if endMeterWh < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "end meter value must not be negative")
	}
	rate, err := s.rates.RatePerKWh(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "resolve tariff")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultStopReason
	}

	var (
		session *models.Session
		charge  Charge
		now     time.Time
	)
	for attempt := 0; ; attempt++ {
		session, err = s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if session.Status == models.SessionFinished {
			return nil, apperr.InvalidState(apperr.CodeSessionFinished, "session %s is already finished", id)
		}

		startWh := int64(0)
		if session.StartMeterWh != nil {
			startWh = *session.StartMeterWh
		}
		charge = ComputeCharge(startWh, endMeterWh, rate)
		now = s.clock.Now()
		ok, err := s.sessions.FinishSession(ctx, id, repository.SessionFinish{
			From:       session.Status,
			EndMeterWh: endMeterWh,
			EndedAt:    now,
			EnergyKWh:  charge.EnergyKWh,
			Cost:       charge.Cost,
			StopReason: reason,
		})
		if err != nil {
			return nil, apperr.Internal(err, "finish session %s", id)
		}
		if ok {
			if endMeterWh < startWh {
				s.logger.Warn("meter went backwards, billing zero energy",
					zap.String("session_id", id),
					zap.Int64("start_meter_wh", startWh),
					zap.Int64("end_meter_wh", endMeterWh),
				)
			}
			break
		}
		// The session moved under us; recompute against its new state.
		if attempt+1 >= stopAttempts {
			return nil, apperr.InvalidState(apperr.CodeInvalidTransition, "session %s changed concurrently, retry stop", id)
		}
	}
	session.Status = models.SessionFinished
	session.EndMeterWh = &endMeterWh
	session.EndedAt = &now
	session.EnergyKWh = charge.EnergyKWh
	session.Cost = charge.Cost
	session.StopReason = &reason
	session.UpdatedAt = now

	s.logger.Info("session finished",
		zap.String("session_id", id),
		zap.Float64("energy_kwh", charge.EnergyKWh),
		zap.Int64("cost", charge.Cost),
	)
	s.evictActive(ctx, session.PointID)
	s.events.emit(ctx, events.TopicSessions, events.SessionFinished, newSessionEvent(session))
	s.events.emit(ctx, events.TopicNotifications, events.NotifyUser, userNotification{
		UserID:    session.UserID,
		SessionID: session.ID,
		Message:   "charging session finished",
		EnergyKWh: charge.EnergyKWh,
		Cost:      charge.Cost,
	})

	if session.ReservationID != nil && s.reservations != nil {
		if err := s.reservations.CompleteReservation(ctx, *session.ReservationID); err != nil {
			s.logger.Warn("reservation not completed",
				zap.String("session_id", id),
				zap.String("reservation_id", *session.ReservationID),
				zap.Error(err),
			)
		}
	}
	return session, nil
}

// GetSession returns session by id.
func (s *SessionsService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeSessionNotFound, "session", id)
	}
	return session, nil
}

// GetEvents derives the lifecycle markers recorded on a session.
func (s *SessionsService) GetEvents(ctx context.Context, id string) ([]models.SessionEvent, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]models.SessionEvent, 0, 2)
	if session.StartedAt != nil {
		out = append(out, models.SessionEvent{Type: "started", At: *session.StartedAt})
	}
	if session.EndedAt != nil {
		out = append(out, models.SessionEvent{Type: "finished", At: *session.EndedAt})
	}
	return out, nil
}

// ListSessionsByUser returns user's session history.
func (s *SessionsService) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if err := requireFields("user_id", userID); err != nil {
		return nil, err
	}
	out, err := s.sessions.ListSessionsByUser(ctx, userID, clampLimit(limit, defaultListLimit, maxListLimit))
	if err != nil {
		return nil, apperr.Internal(err, "list sessions of user %s", userID)
	}
	return out, nil
}

// ActiveSessionForPoint returns the session occupying a point, from cache when possible.
func (s *SessionsService) ActiveSessionForPoint(ctx context.Context, pointID string) (*redisstore.ActiveSession, error) {
	if s.cache != nil {
		cached, found, err := s.cache.Get(ctx, pointID)
		if err != nil {
			s.logger.Warn("active session cache read failed", zap.String("point_id", pointID), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	active, err := s.sessions.ListActiveSessionsByPoint(ctx, pointID)
	if err != nil {
		return nil, apperr.Internal(err, "list sessions of point %s", pointID)
	}
	if len(active) == 0 {
		return nil, apperr.NotFound(apperr.CodeSessionNotFound, "no active session on point %s", pointID)
	}
	session := &active[0]
	s.cacheActive(ctx, session)
	view := toActiveSession(session)
	return &view, nil
}

func toActiveSession(session *models.Session) redisstore.ActiveSession {
	return redisstore.ActiveSession{
		SessionID: session.ID,
		PointID:   session.PointID,
		UserID:    session.UserID,
		Status:    string(session.Status),
		StartedAt: session.OccupiedFrom(),
	}
}

func (s *SessionsService) cacheActive(ctx context.Context, session *models.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, toActiveSession(session)); err != nil {
		s.logger.Warn("failed to cache active session", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	// A stop may have evicted the point before this save landed.
	current, err := s.sessions.GetSession(ctx, session.ID)
	if err != nil || current.Status != models.SessionFinished {
		return
	}
	cached, ok, err := s.cache.Get(ctx, session.PointID)
	if err == nil && ok && cached.SessionID == session.ID {
		s.evictActive(ctx, session.PointID)
	}
}

func (s *SessionsService) evictActive(ctx context.Context, pointID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pointID); err != nil {
		s.logger.Warn("failed to delete active session cache", zap.String("point_id", pointID), zap.Error(err))
	}
}
