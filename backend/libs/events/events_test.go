package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
	types  []string
	err    error
	block  chan struct{}
}

func (r *recorder) Publish(ctx context.Context, topic string, env Envelope) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.types = append(r.types, env.Type)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.types)
}

func TestEnvelopeJSONShape(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	raw, err := json.Marshal(NewEnvelope(SessionStarted, at, map[string]string{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != SessionStarted {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	if decoded["timestamp"] != "2024-05-01T09:00:00Z" {
		t.Fatalf("expected UTC timestamp, got %v", decoded["timestamp"])
	}
	if _, ok := decoded["data"].(map[string]any); !ok {
		t.Fatalf("expected data object, got %T", decoded["data"])
	}
}

func TestMultiAttemptsEveryPublisher(t *testing.T) {
	failing := &recorder{err: errors.New("down")}
	healthy := &recorder{}
	err := Multi{failing, nil, healthy}.Publish(context.Background(), TopicSessions, Envelope{Type: SessionPaused})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if healthy.count() != 1 || failing.count() != 1 {
		t.Fatalf("expected both publishers called, got %d/%d", failing.count(), healthy.count())
	}
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	next := &recorder{}
	p := NewAsyncPublisher(next, 1, zap.NewNop())

	if err := p.Publish(context.Background(), TopicWaitlist, Envelope{Type: WaitlistJoined}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := p.Publish(context.Background(), TopicWaitlist, Envelope{Type: WaitlistRemoved}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestAsyncPublisherForwards(t *testing.T) {
	next := &recorder{err: errors.New("transport down")}
	p := NewAsyncPublisher(next, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		if err := p.Publish(ctx, TopicTelemetry, Envelope{Type: MeterReading}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for next.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 forwarded envelopes, got %d", next.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAsyncPublisherDoesNotBlockOnSlowTransport(t *testing.T) {
	next := &recorder{block: make(chan struct{})}
	defer close(next.block)
	p := NewAsyncPublisher(next, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = p.Publish(ctx, TopicSessions, Envelope{Type: SessionStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a stalled transport")
	}
}
