package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/service"
)

// WaitlistHandlers serves waitlist endpoints.
type WaitlistHandlers struct {
	service *service.WaitlistService
	logger  *zap.Logger
}

// NewWaitlistHandlers returns handler.
func NewWaitlistHandlers(svc *service.WaitlistService, logger *zap.Logger) *WaitlistHandlers {
	return &WaitlistHandlers{service: svc, logger: logger}
}

type queueRequest struct {
	StationID     string `json:"station_id"`
	ConnectorType string `json:"connector_type"`
}

// Join handles POST /waitlist for the calling user.
func (h *WaitlistHandlers) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	entry, err := h.service.JoinWaitlist(r.Context(), service.JoinWaitlistInput{
		UserID:        userID,
		StationID:     req.StationID,
		ConnectorType: req.ConnectorType,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// List handles GET /waitlist?station_id=&connector_type=.
func (h *WaitlistHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.service.ListWaitlist(r.Context(), q.Get("station_id"), q.Get("connector_type"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Get handles GET /waitlist/{id}.
func (h *WaitlistHandlers) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetWaitlistEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Remove handles DELETE /waitlist/{id}.
func (h *WaitlistHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.RemoveFromWaitlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// NotifyNext handles POST /waitlist/notify-next.
func (h *WaitlistHandlers) NotifyNext(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	entry, err := h.service.NotifyNext(r.Context(), req.StationID, req.ConnectorType)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
