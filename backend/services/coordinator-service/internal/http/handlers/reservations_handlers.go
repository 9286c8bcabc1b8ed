package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/service"
)

// ReservationsHandlers serves reservation and availability endpoints.
type ReservationsHandlers struct {
	service *service.ReservationsService
	logger  *zap.Logger
}

// NewReservationsHandlers returns handler.
func NewReservationsHandlers(svc *service.ReservationsService, logger *zap.Logger) *ReservationsHandlers {
	return &ReservationsHandlers{service: svc, logger: logger}
}

type createReservationRequest struct {
	StationID     string    `json:"station_id"`
	PointID       string    `json:"point_id"`
	ConnectorType string    `json:"connector_type"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

type intervalRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Availability handles GET /availability?point_id=&start=&end=.
func (h *ReservationsHandlers) Availability(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if start == nil || end == nil {
		writeServiceError(w, h.logger, apperr.Validation(apperr.CodeInvalidInterval, "start and end are required"))
		return
	}
	avail, err := h.service.Availability().IsAvailable(r.Context(), r.URL.Query().Get("point_id"), start.UTC(), end.UTC())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// Create handles POST /reservations for the calling user.
func (h *ReservationsHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res, err := h.service.CreateReservation(r.Context(), service.CreateReservationInput{
		UserID:        userID,
		StationID:     req.StationID,
		PointID:       req.PointID,
		ConnectorType: req.ConnectorType,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Mine handles GET /reservations/me.
func (h *ReservationsHandlers) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	list, err := h.service.ListReservationsByUser(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /reservations/{id}.
func (h *ReservationsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Confirm handles POST /reservations/{id}/confirm.
func (h *ReservationsHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ConfirmReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Update handles PUT /reservations/{id}.
func (h *ReservationsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	res, err := h.service.UpdateReservation(r.Context(), chi.URLParam(r, "id"), req.StartTime, req.EndTime)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Cancel handles POST /reservations/{id}/cancel.
func (h *ReservationsHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CancelReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /reservations/{id}.
func (h *ReservationsHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteReservation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
