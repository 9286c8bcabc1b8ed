package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/apperr"
	redisstore "chargehub/backend/services/coordinator-service/internal/redis"
	"chargehub/backend/services/coordinator-service/internal/repository"
	"chargehub/backend/services/coordinator-service/internal/repository/memory"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishedEvent struct {
	topic string
	env   events.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, env: env})
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.env.Type == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.env.Type)
	}
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]redisstore.ActiveSession
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]redisstore.ActiveSession)}
}

func (c *fakeCache) Save(_ context.Context, s redisstore.ActiveSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.PointID] = s
	return nil
}

func (c *fakeCache) Get(_ context.Context, pointID string) (*redisstore.ActiveSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[pointID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *fakeCache) Delete(_ context.Context, pointID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, pointID)
	return nil
}

type fixture struct {
	store        *memory.Store
	clock        *fakeClock
	pub          *recordingPublisher
	cache        *fakeCache
	reservations *ReservationsService
	sessions     *SessionsService
	waitlist     *WaitlistService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	for _, u := range []string{"u1", "u2", "u3"} {
		store.AddReference("users", "id", u)
	}
	store.AddReference("stations", "id", "st1")
	for _, p := range []string{"p1", "p2"} {
		store.AddReference("charging_points", "id", p)
	}

	clk := &fakeClock{now: baseTime}
	pub := &recordingPublisher{}
	cache := newFakeCache()
	logger := zap.NewNop()

	waitlist := NewWaitlistService(store, store, pub, clk, 30*time.Minute, logger)
	reservations := NewReservationsService(
		store, store,
		NewAvailabilityResolver(store, store),
		pub, clk,
		ReservationOptions{RefundFullThreshold: 2 * time.Hour, Releases: waitlist},
		logger,
	)
	sessions := NewSessionsService(SessionsDeps{
		Sessions:     store,
		Telemetry:    store,
		Lookup:       store,
		Rates:        NewTariffService(store, 20000, logger),
		Cache:        cache,
		Reservations: reservations,
		Publisher:    pub,
		Clock:        clk,
		Logger:       logger,
	})

	return &fixture{
		store:        store,
		clock:        clk,
		pub:          pub,
		cache:        cache,
		reservations: reservations,
		sessions:     sessions,
		waitlist:     waitlist,
	}
}

// sessionsWith builds a sessions service sharing the fixture's store, clock and publisher but
// with its own session store and cache.
func (f *fixture) sessionsWith(sessions repository.SessionStore, cache ActiveSessionCache) *SessionsService {
	logger := zap.NewNop()
	return NewSessionsService(SessionsDeps{
		Sessions:     sessions,
		Telemetry:    f.store,
		Lookup:       f.store,
		Rates:        NewTariffService(f.store, 20000, logger),
		Cache:        cache,
		Reservations: f.reservations,
		Publisher:    f.pub,
		Clock:        f.clock,
		Logger:       logger,
	})
}

func (f *fixture) reserve(t *testing.T, userID, pointID string, start, end time.Time) string {
	t.Helper()
	res, err := f.reservations.CreateReservation(context.Background(), CreateReservationInput{
		UserID:        userID,
		StationID:     "st1",
		PointID:       pointID,
		ConnectorType: "CCS",
		StartTime:     start,
		EndTime:       end,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return res.ID
}

func expectKind(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if appErr.Kind != kind || (code != "" && appErr.Code != code) {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", kind, code, appErr.Kind, appErr.Code, err)
	}
}

func int64Ptr(v int64) *int64 { return &v }
