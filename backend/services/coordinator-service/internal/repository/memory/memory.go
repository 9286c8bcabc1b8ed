// Package memory is an in-process implementation of the repository stores. Every method
// takes the store mutex for its whole duration, which gives the conditional updates the same
// compare-and-swap semantics as the SQL implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chargehub/backend/services/coordinator-service/internal/models"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

// Store holds all entities in maps.
type Store struct {
	mu sync.Mutex

	reservations map[string]models.Reservation
	sessions     map[string]models.Session
	samples      []models.TelemetrySample
	sampleSeq    int64
	waitlist     map[string]models.WaitlistEntry
	tariff       *models.Tariff
	reference    map[string]map[string]bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		reservations: make(map[string]models.Reservation),
		sessions:     make(map[string]models.Session),
		waitlist:     make(map[string]models.WaitlistEntry),
		reference:    make(map[string]map[string]bool),
	}
}

var (
	_ repository.ReservationStore = (*Store)(nil)
	_ repository.SessionStore     = (*Store)(nil)
	_ repository.TelemetryStore   = (*Store)(nil)
	_ repository.WaitlistStore    = (*Store)(nil)
	_ repository.Lookup           = (*Store)(nil)
	_ repository.TariffStore      = (*Store)(nil)
)

// AddReference registers a row for existence checks, e.g. ("users", "id", "u1").
func (s *Store) AddReference(table, column, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := table + "." + column
	if s.reference[key] == nil {
		s.reference[key] = make(map[string]bool)
	}
	s.reference[key][value] = true
}

// SetTariff installs the active tariff.
func (s *Store) SetTariff(t models.Tariff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.IsActive = true
	s.tariff = &t
}

// Exists implements repository.Lookup.
func (s *Store) Exists(_ context.Context, table, column, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference[table+"."+column][value], nil
}

// GetActiveTariff implements repository.TariffStore.
func (s *Store) GetActiveTariff(_ context.Context) (*models.Tariff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tariff == nil {
		return nil, repository.ErrNotFound
	}
	t := *s.tariff
	return &t, nil
}

// CreateReservation implements repository.ReservationStore.
func (s *Store) CreateReservation(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[r.ID]; ok {
		return repository.ErrDuplicate
	}
	r.UpdatedAt = r.CreatedAt
	s.reservations[r.ID] = *r
	return nil
}

// GetReservation implements repository.ReservationStore.
func (s *Store) GetReservation(_ context.Context, id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

// ListReservationsByUser implements repository.ReservationStore.
func (s *Store) ListReservationsByUser(_ context.Context, userID string, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return truncate(out, limit), nil
}

// ListReservationsByPoint implements repository.ReservationStore.
func (s *Store) ListReservationsByPoint(_ context.Context, pointID string, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.PointID == pointID && containsStatus(statuses, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ListExpiredPending implements repository.ReservationStore.
func (s *Store) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.Status == models.ReservationPending && !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

// TransitionReservation implements repository.ReservationStore.
func (s *Store) TransitionReservation(_ context.Context, id string, from []models.ReservationStatus, to models.ReservationStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || !containsStatus(from, r.Status) {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	s.reservations[id] = r
	return true, nil
}

// ExpireReservation implements repository.ReservationStore.
func (s *Store) ExpireReservation(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.Status != models.ReservationPending || r.ExpiresAt.After(now) {
		return false, nil
	}
	r.Status = models.ReservationExpired
	r.UpdatedAt = now
	s.reservations[id] = r
	return true, nil
}

// UpdateReservationInterval implements repository.ReservationStore.
func (s *Store) UpdateReservationInterval(_ context.Context, id string, start, end, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || !r.Status.Blocking() {
		return false, nil
	}
	r.StartTime = start
	r.EndTime = end
	r.UpdatedAt = at
	s.reservations[id] = r
	return true, nil
}

// DeleteReservation implements repository.ReservationStore.
func (s *Store) DeleteReservation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.reservations, id)
	return nil
}

// CreateSession implements repository.SessionStore.
func (s *Store) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return repository.ErrDuplicate
	}
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = cloneSession(*sess)
	return nil
}

// GetSession implements repository.SessionStore.
func (s *Store) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneSession(sess)
	return &out, nil
}

// ListSessionsByUser implements repository.SessionStore.
func (s *Store) ListSessionsByUser(_ context.Context, userID string, limit int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// ListActiveSessionsByPoint implements repository.SessionStore.
func (s *Store) ListActiveSessionsByPoint(_ context.Context, pointID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.PointID == pointID && sess.Status.Active() {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// StartSession implements repository.SessionStore.
func (s *Store) StartSession(_ context.Context, id string, startMeterWh int64, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != models.SessionInitiated {
		return false, nil
	}
	sess.Status = models.SessionCharging
	sess.StartMeterWh = &startMeterWh
	sess.StartedAt = &startedAt
	sess.UpdatedAt = startedAt
	s.sessions[id] = sess
	return true, nil
}

// TransitionSession implements repository.SessionStore.
func (s *Store) TransitionSession(_ context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != from {
		return false, nil
	}
	sess.Status = to
	sess.UpdatedAt = at
	s.sessions[id] = sess
	return true, nil
}

// FinishSession implements repository.SessionStore.
func (s *Store) FinishSession(_ context.Context, id string, f repository.SessionFinish) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status == models.SessionFinished || sess.Status != f.From {
		return false, nil
	}
	endMeter, endedAt, reason := f.EndMeterWh, f.EndedAt, f.StopReason
	sess.Status = models.SessionFinished
	sess.EndMeterWh = &endMeter
	sess.EndedAt = &endedAt
	sess.EnergyKWh = f.EnergyKWh
	sess.Cost = f.Cost
	sess.StopReason = &reason
	sess.UpdatedAt = endedAt
	s.sessions[id] = sess
	return true, nil
}

// AppendSample implements repository.TelemetryStore.
func (s *Store) AppendSample(_ context.Context, sample *models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sample.SessionID]; !ok {
		return fmt.Errorf("memory: session %s does not exist", sample.SessionID)
	}
	s.sampleSeq++
	sample.ID = s.sampleSeq
	s.samples = append(s.samples, *sample)
	return nil
}

// ListSamples implements repository.TelemetryStore.
func (s *Store) ListSamples(_ context.Context, sessionID string, q repository.TelemetryQuery) ([]models.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TelemetrySample
	for _, sample := range s.samples {
		if sample.SessionID != sessionID {
			continue
		}
		if q.From != nil && sample.RecordedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && sample.RecordedAt.After(*q.To) {
			continue
		}
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return truncate(out, q.Limit), nil
}

// EnqueueWaitlist implements repository.WaitlistStore.
func (s *Store) EnqueueWaitlist(_ context.Context, entry *models.WaitlistEntry, slot time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.waitlist {
		if e.UserID == entry.UserID {
			return repository.ErrDuplicate
		}
		if e.StationID == entry.StationID && e.ConnectorType == entry.ConnectorType {
			count++
		}
	}
	entry.Position = count + 1
	entry.EstimatedWaitMinutes = repository.EstimateWaitMinutes(entry.Position, slot)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.waitlist[entry.ID] = *entry
	return nil
}

// GetWaitlistEntry implements repository.WaitlistStore.
func (s *Store) GetWaitlistEntry(_ context.Context, id string) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

// ListWaitlist implements repository.WaitlistStore.
func (s *Store) ListWaitlist(_ context.Context, stationID, connectorType string) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue(stationID, connectorType), nil
}

func (s *Store) queue(stationID, connectorType string) []models.WaitlistEntry {
	var out []models.WaitlistEntry
	for _, e := range s.waitlist {
		if e.StationID == stationID && e.ConnectorType == connectorType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// RemoveWaitlistEntry implements repository.WaitlistStore.
func (s *Store) RemoveWaitlistEntry(_ context.Context, id string, slot time.Duration) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, ok := s.waitlist[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.waitlist, id)
	for _, e := range s.queue(removed.StationID, removed.ConnectorType) {
		if e.Position > removed.Position {
			e.Position--
			e.EstimatedWaitMinutes = repository.EstimateWaitMinutes(e.Position, slot)
			s.waitlist[e.ID] = e
		}
	}
	removed.Status = models.WaitlistRemoved
	return &removed, nil
}

// MarkHeadNotified implements repository.WaitlistStore.
func (s *Store) MarkHeadNotified(_ context.Context, stationID, connectorType string) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.queue(stationID, connectorType) {
		if e.Status == models.WaitlistWaiting {
			e.Status = models.WaitlistNotified
			s.waitlist[e.ID] = e
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func containsStatus(statuses []models.ReservationStatus, status models.ReservationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneSession(s models.Session) models.Session {
	if s.Metadata != nil {
		md := make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	return s
}
