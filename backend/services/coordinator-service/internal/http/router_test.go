package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/http/handlers"
	"chargehub/backend/services/coordinator-service/internal/http/middleware"
	"chargehub/backend/services/coordinator-service/internal/repository/memory"
	"chargehub/backend/services/coordinator-service/internal/service"
)

const testSecret = "test-secret"

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	store.AddReference("users", "id", "u1")
	store.AddReference("users", "id", "u2")
	store.AddReference("stations", "id", "st1")
	store.AddReference("charging_points", "id", "p1")

	logger := zap.NewNop()
	clk := clock.Func(func() time.Time { return now })
	waitlist := service.NewWaitlistService(store, store, events.Nop, clk, 30*time.Minute, logger)
	reservations := service.NewReservationsService(store, store, service.NewAvailabilityResolver(store, store),
		events.Nop, clk, service.ReservationOptions{Releases: waitlist}, logger)
	sessions := service.NewSessionsService(service.SessionsDeps{
		Sessions:     store,
		Telemetry:    store,
		Lookup:       store,
		Rates:        service.NewTariffService(store, 20000, logger),
		Reservations: reservations,
		Publisher:    events.Nop,
		Clock:        clk,
		Logger:       logger,
	})

	return NewRouter(RouterDeps{
		Reservations: handlers.NewReservationsHandlers(reservations, logger),
		Sessions:     handlers.NewSessionsHandlers(sessions, logger),
		Waitlist:     handlers.NewWaitlistHandlers(waitlist, logger),
		Health:       handlers.NewHealthHandler(nil),
	}, middleware.AuthMiddleware(testSecret))
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": userID, "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h := newTestRouter(t)
	if rec := do(t, h, http.MethodGet, "/api/v1/reservations/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/reservations/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestReservationEndpoints(t *testing.T) {
	h := newTestRouter(t)
	user := token(t, "u1", "")
	body := map[string]interface{}{
		"station_id":     "st1",
		"point_id":       "p1",
		"connector_type": "CCS",
		"start_time":     now.Add(3 * time.Hour),
		"end_time":       now.Add(4 * time.Hour),
	}

	rec := do(t, h, http.MethodPost, "/api/v1/reservations", user, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		UserID string `json:"user_id"`
	}
	decode(t, rec, &created)
	if created.Status != "pending" || created.UserID != "u1" {
		t.Fatalf("unexpected reservation %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/reservations", token(t, "u2", ""), body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap: expected 409, got %d", rec.Code)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	decode(t, rec, &errBody)
	if errBody.Code != "slot_unavailable" {
		t.Fatalf("unexpected error code %q", errBody.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/availability?point_id=p1&start=2026-03-02T13:30:00Z&end=2026-03-02T14:30:00Z", user, nil)
	var avail struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason"`
	}
	decode(t, rec, &avail)
	if rec.Code != http.StatusOK || avail.Available || avail.Reason != "reserved" {
		t.Fatalf("availability: %d %+v", rec.Code, avail)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/reservations/"+created.ID+"/confirm", user, nil); rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/reservations/"+created.ID+"/confirm", user, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("second confirm: expected 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/reservations/"+created.ID+"/cancel", user, nil)
	var cancelled struct {
		Refund string `json:"refund"`
	}
	decode(t, rec, &cancelled)
	if rec.Code != http.StatusOK || cancelled.Refund != "full" {
		t.Fatalf("cancel: %d %+v", rec.Code, cancelled)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/reservations/missing", user, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/reservations/"+created.ID, user, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("delete as user: expected 403, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/reservations/"+created.ID, token(t, "ops", middleware.RoleAdmin), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete as admin: expected 204, got %d", rec.Code)
	}
}

func TestReservationRejectsBadInterval(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/v1/reservations", token(t, "u1", ""), map[string]interface{}{
		"station_id":     "st1",
		"point_id":       "p1",
		"connector_type": "CCS",
		"start_time":     now.Add(2 * time.Hour),
		"end_time":       now.Add(time.Hour),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	h := newTestRouter(t)
	user := token(t, "u1", "")

	rec := do(t, h, http.MethodPost, "/api/v1/sessions", user, map[string]string{"point_id": "p1", "auth_method": "rfid"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		ID string `json:"id"`
	}
	decode(t, rec, &session)
	base := "/api/v1/sessions/" + session.ID

	if rec := do(t, h, http.MethodPost, base+"/start", user, nil); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, base+"/telemetry", user, map[string]interface{}{"meter_wh": 1200, "soc": 40.5}); rec.Code != http.StatusAccepted {
		t.Fatalf("telemetry: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/v1/points/p1/active-session", user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active session: expected 200, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, base+"/stop", user, map[string]interface{}{"reason": "Local", "end_meter_wh": 3000})
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stopped struct {
		EnergyKWh float64 `json:"energy_kwh"`
		Cost      int64   `json:"cost"`
		Status    string  `json:"status"`
	}
	decode(t, rec, &stopped)
	if stopped.Status != "finished" || stopped.EnergyKWh != 3 || stopped.Cost != 60000 {
		t.Fatalf("unexpected stopped session %+v", stopped)
	}

	if rec := do(t, h, http.MethodPost, base+"/telemetry", user, map[string]interface{}{"meter_wh": 3100}); rec.Code != http.StatusBadRequest {
		t.Fatalf("telemetry after stop: expected 400, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, base+"/telemetry?limit=10", user, nil)
	var samples []map[string]interface{}
	decode(t, rec, &samples)
	if rec.Code != http.StatusOK || len(samples) != 1 {
		t.Fatalf("telemetry read: %d %v", rec.Code, samples)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/points/p1/active-session", user, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("active session after stop: expected 404, got %d", rec.Code)
	}
}

func TestWaitlistEndpoints(t *testing.T) {
	h := newTestRouter(t)
	user := token(t, "u1", "")
	body := map[string]string{"station_id": "st1", "connector_type": "CCS"}

	rec := do(t, h, http.MethodPost, "/api/v1/waitlist", user, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/waitlist", user, body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate join: expected 409, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/waitlist/notify-next", user, body); rec.Code != http.StatusForbidden {
		t.Fatalf("notify as user: expected 403, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/waitlist/notify-next", token(t, "ops", middleware.RoleAdmin), body)
	var entry struct {
		Status string `json:"status"`
	}
	decode(t, rec, &entry)
	if rec.Code != http.StatusOK || entry.Status != "notified" {
		t.Fatalf("notify: %d %+v", rec.Code, entry)
	}
}
