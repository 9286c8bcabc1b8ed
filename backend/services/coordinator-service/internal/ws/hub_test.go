package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargehub/backend/libs/events"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversSubscribedTopics(t *testing.T) {
	hub := NewHub(time.Minute, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, time.Second, zap.NewNop()).HandleWS))
	defer srv.Close()

	sessionsOnly := dial(t, srv, "?topics="+events.TopicSessions)
	everything := dial(t, srv, "")
	waitFor(t, 2*time.Second, func() bool { return hub.Count() == 2 })

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := hub.Publish(ctx, events.TopicReservations, events.NewEnvelope(events.ReservationCreated, at, map[string]string{"reservation_id": "r1"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := hub.Publish(ctx, events.TopicSessions, events.NewEnvelope(events.SessionStarted, at, map[string]string{"session_id": "s1"})); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first := readMessage(t, sessionsOnly)
	if first.Topic != events.TopicSessions || first.Type != events.SessionStarted {
		t.Fatalf("filtered subscriber got %+v", first)
	}

	got := []string{readMessage(t, everything).Type, readMessage(t, everything).Type}
	if got[0] != events.ReservationCreated || got[1] != events.SessionStarted {
		t.Fatalf("unfiltered subscriber got %v", got)
	}
}

func TestHubForgetsClosedSubscribers(t *testing.T) {
	hub := NewHub(time.Minute, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, time.Second, zap.NewNop()).HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	_ = conn.Close()
	waitFor(t, 2*time.Second, func() bool { return hub.Count() == 0 })
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected topics %v", got)
	}
	if parseTopics("") != nil {
		t.Fatalf("expected nil for empty query")
	}
}

type decoded struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) decoded {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg decoded
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

func TestSlowPingDoesNotBlockRegistration(t *testing.T) {
	hub := NewHub(10*time.Millisecond, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, time.Second, zap.NewNop()).HandleWS))
	defer srv.Close()

	dial(t, srv, "")
	waitFor(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	stuck := hub.snapshot()[0]

	// Hold the writer so the next ping blocks mid-write.
	stuck.writeMu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	registered := make(chan struct{})
	go func() {
		hub.Add(&Connection{id: "late"})
		hub.Remove("late")
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(time.Second):
		stuck.writeMu.Unlock()
		t.Fatalf("add/remove blocked behind a ping")
	}
	stuck.writeMu.Unlock()
}
