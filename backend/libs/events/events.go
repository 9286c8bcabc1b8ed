// Package events defines the domain event envelope, topic names and the publisher
// implementations used to ship them to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"
)

// Topics.
const (
	TopicSessions      = "session_events"
	TopicTelemetry     = "telemetry_events"
	TopicReservations  = "reservation_events"
	TopicWaitlist      = "waitlist_events"
	TopicNotifications = "notification_events"
)

// Event types.
const (
	SessionInitiated = "SESSION_INITIATED"
	SessionStarted   = "SESSION_STARTED"
	SessionPaused    = "SESSION_PAUSED"
	SessionResumed   = "SESSION_RESUMED"
	SessionFinished  = "SESSION_FINISHED"

	MeterReading = "METER_READING"

	ReservationCreated   = "RESERVATION_CREATED"
	ReservationConfirmed = "RESERVATION_CONFIRMED"
	ReservationCancelled = "RESERVATION_CANCELLED"
	ReservationExpired   = "RESERVATION_EXPIRED"

	WaitlistJoined  = "WAITLIST_JOINED"
	WaitlistRemoved = "WAITLIST_REMOVED"

	NotifyUser          = "NOTIFY_USER"
	NotificationCreated = "NOTIFICATION_CREATED"
)

// Envelope is the JSON message published for every state change.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEnvelope stamps an event with the given time in UTC.
func NewEnvelope(eventType string, at time.Time, data any) Envelope {
	return Envelope{Type: eventType, Timestamp: at.UTC(), Data: data}
}

// Publisher ships an envelope to a named topic. Implementations may fail; callers on the
// critical path log the error and carry on.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, env Envelope) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, topic string, env Envelope) error {
	return f(ctx, topic, env)
}

// Nop drops everything.
var Nop Publisher = PublisherFunc(func(context.Context, string, Envelope) error { return nil })

// Multi fans an envelope out to several publishers. Every publisher is attempted.
type Multi []Publisher

// Publish delivers to each publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, topic string, env Envelope) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
