package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/service"
)

// SessionsHandlers serves charging session endpoints.
type SessionsHandlers struct {
	service *service.SessionsService
	logger  *zap.Logger
}

// NewSessionsHandlers returns handler.
func NewSessionsHandlers(svc *service.SessionsService, logger *zap.Logger) *SessionsHandlers {
	return &SessionsHandlers{service: svc, logger: logger}
}

type initiateSessionRequest struct {
	PointID       string `json:"point_id"`
	VehicleID     string `json:"vehicle_id"`
	AuthMethod    string `json:"auth_method"`
	ReservationID string `json:"reservation_id"`
}

type startSessionRequest struct {
	StartMeterWh *int64 `json:"start_meter_wh"`
}

type meterReadingRequest struct {
	Timestamp time.Time `json:"timestamp"`
	MeterWh   int64     `json:"meter_wh"`
	PowerKW   *float64  `json:"power_kw"`
	SoC       *float64  `json:"soc"`
}

type stopSessionRequest struct {
	Reason     string `json:"reason"`
	EndMeterWh int64  `json:"end_meter_wh"`
}

// Initiate handles POST /sessions for the calling user.
func (h *SessionsHandlers) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req initiateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.service.InitiateSession(r.Context(), service.InitiateSessionInput{
		PointID:       req.PointID,
		UserID:        userID,
		VehicleID:     req.VehicleID,
		AuthMethod:    req.AuthMethod,
		ReservationID: req.ReservationID,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Mine handles GET /sessions/me.
func (h *SessionsHandlers) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	list, err := h.service.ListSessionsByUser(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /sessions/{id}.
func (h *SessionsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Start handles POST /sessions/{id}/start. The body is optional.
func (h *SessionsHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.service.StartSession(r.Context(), chi.URLParam(r, "id"), req.StartMeterWh)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// PushTelemetry handles POST /sessions/{id}/telemetry.
func (h *SessionsHandlers) PushTelemetry(w http.ResponseWriter, r *http.Request) {
	var req meterReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	sample, err := h.service.PushMeterReading(r.Context(), service.MeterReadingInput{
		SessionID: chi.URLParam(r, "id"),
		Timestamp: req.Timestamp,
		MeterWh:   req.MeterWh,
		PowerKW:   req.PowerKW,
		SoC:       req.SoC,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sample)
}

// Telemetry handles GET /sessions/{id}/telemetry?from=&to=&limit=.
func (h *SessionsHandlers) Telemetry(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	samples, err := h.service.GetTelemetry(r.Context(), chi.URLParam(r, "id"), service.TelemetryFilter{From: from, To: to, Limit: limit})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// Pause handles POST /sessions/{id}/pause.
func (h *SessionsHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PauseSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Resume handles POST /sessions/{id}/resume.
func (h *SessionsHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ResumeSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Stop handles POST /sessions/{id}/stop.
func (h *SessionsHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	session, err := h.service.StopSession(r.Context(), chi.URLParam(r, "id"), req.Reason, req.EndMeterWh)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Events handles GET /sessions/{id}/events.
func (h *SessionsHandlers) Events(w http.ResponseWriter, r *http.Request) {
	evts, err := h.service.GetEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, evts)
}

// ActiveForPoint handles GET /points/{id}/active-session.
func (h *SessionsHandlers) ActiveForPoint(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.ActiveSessionForPoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}
