package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/http/handlers"
	"chargehub/backend/services/coordinator-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Reservations *handlers.ReservationsHandlers
	Sessions     *handlers.SessionsHandlers
	Waitlist     *handlers.WaitlistHandlers
	Health       http.HandlerFunc
	// Events upgrades to the websocket event stream. Optional.
	Events http.HandlerFunc
	Logger *zap.Logger
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	if deps.Logger != nil {
		r.Use(middleware.RequestLogger(deps.Logger))
	}

	r.Get("/health", deps.Health)
	if deps.Events != nil {
		r.Get("/events/ws", deps.Events)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/availability", deps.Reservations.Availability)

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", deps.Reservations.Create)
			r.Get("/me", deps.Reservations.Mine)
			r.Get("/{id}", deps.Reservations.Get)
			r.Put("/{id}", deps.Reservations.Update)
			r.Post("/{id}/confirm", deps.Reservations.Confirm)
			r.Post("/{id}/cancel", deps.Reservations.Cancel)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Delete("/{id}", deps.Reservations.Delete)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", deps.Sessions.Initiate)
			r.Get("/me", deps.Sessions.Mine)
			r.Get("/{id}", deps.Sessions.Get)
			r.Post("/{id}/start", deps.Sessions.Start)
			r.Post("/{id}/telemetry", deps.Sessions.PushTelemetry)
			r.Get("/{id}/telemetry", deps.Sessions.Telemetry)
			r.Post("/{id}/pause", deps.Sessions.Pause)
			r.Post("/{id}/resume", deps.Sessions.Resume)
			r.Post("/{id}/stop", deps.Sessions.Stop)
			r.Get("/{id}/events", deps.Sessions.Events)
		})

		r.Get("/points/{id}/active-session", deps.Sessions.ActiveForPoint)

		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", deps.Waitlist.Join)
			r.Get("/", deps.Waitlist.List)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Post("/notify-next", deps.Waitlist.NotifyNext)
			r.Get("/{id}", deps.Waitlist.Get)
			r.Delete("/{id}", deps.Waitlist.Remove)
		})
	})

	return r
}
