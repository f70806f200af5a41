package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(typ swarm.EventType, subject string) swarm.Event {
	return swarm.Event{
		ID:      "ev-" + subject,
		Type:    typ,
		At:      time.Unix(1_700_000_000, 0).UTC(),
		Subject: subject,
		Data:    map[string]int{"n": 1},
	}
}

// --- Hub ---

func TestHub_DeliversAndFilters(t *testing.T) {
	hub := NewHub(testLogger())
	all := hub.Subscribe(4)
	votes := hub.Subscribe(4, swarm.EventVoteCast)

	hub.Publish(context.Background(), testEvent(swarm.EventProposalCreated, "0"))
	hub.Publish(context.Background(), testEvent(swarm.EventVoteCast, "0"))

	if got := len(all.C); got != 2 {
		t.Errorf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(votes.C); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	if ev := <-votes.C; ev.Type != swarm.EventVoteCast {
		t.Errorf("filtered event type = %s, want %s", ev.Type, swarm.EventVoteCast)
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(testLogger())
	sub := hub.Subscribe(1)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), testEvent(swarm.EventVoteCast, "0")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if sub.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", sub.Dropped())
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(testLogger())
	sub := hub.Subscribe(1)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if hub.Len() != 0 {
		t.Errorf("Len = %d, want 0", hub.Len())
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	// Publishing with no subscribers must not panic.
	hub.Publish(context.Background(), testEvent(swarm.EventVoteCast, "0"))
}

// --- WebSocket ---

func dialWS(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(HandleWebSocket(hub, testLogger()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestWebSocket_StreamsEvents(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialWS(t, hub, "")

	hub.Publish(context.Background(), testEvent(swarm.EventProposalCreated, "7"))

	f := readFrame(t, conn)
	if f.Type != "event" {
		t.Fatalf("frame type = %q, want event", f.Type)
	}
	var ev swarm.Event
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != swarm.EventProposalCreated || ev.Subject != "7" || ev.ID != "ev-7" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialWS(t, hub, "")

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "pong" {
		t.Fatalf("frame type = %q, want pong", f.Type)
	}

	sub := map[string]any{"type": "subscribe", "payload": map[string]any{"types": []string{"proposal.executed"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "subscribed" {
		t.Fatalf("frame type = %q, want subscribed", f.Type)
	}

	hub.Publish(context.Background(), testEvent(swarm.EventVoteCast, "1"))
	hub.Publish(context.Background(), testEvent(swarm.EventProposalExecuted, "1"))

	f := readFrame(t, conn)
	var ev swarm.Event
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != swarm.EventProposalExecuted {
		t.Errorf("event type = %s, want %s", ev.Type, swarm.EventProposalExecuted)
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "error" {
		t.Errorf("frame type = %q, want error", f.Type)
	}
}

func TestWebSocket_QueryFilter(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialWS(t, hub, "?types=agent.registered")

	hub.Publish(context.Background(), testEvent(swarm.EventVoteCast, "0"))
	hub.Publish(context.Background(), testEvent(swarm.EventAgentRegistered, "abc"))

	f := readFrame(t, conn)
	var ev swarm.Event
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != swarm.EventAgentRegistered {
		t.Errorf("event type = %s, want %s", ev.Type, swarm.EventAgentRegistered)
	}
}

func TestWebSocket_UnsubscribesOnClose(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dialWS(t, hub, "")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- Redis and Multi ---

func TestStreamValues(t *testing.T) {
	ev := testEvent(swarm.EventOutcomeRecorded, "3")
	values, err := streamValues(ev)
	if err != nil {
		t.Fatalf("streamValues: %v", err)
	}
	if values["type"] != "proposal.outcome" || values["subject"] != "3" || values["id"] != "ev-3" {
		t.Errorf("values = %v", values)
	}
	if values["time"] != int64(1_700_000_000) {
		t.Errorf("time = %v, want 1700000000", values["time"])
	}
	if values["data"] != `{"n":1}` {
		t.Errorf("data = %v", values["data"])
	}

	ev.Data = func() {}
	if _, err := streamValues(ev); err == nil {
		t.Error("expected encode error for unencodable data")
	}
}

func TestNewRedisStream_BadURL(t *testing.T) {
	if _, err := NewRedisStream("not a url", "", 0); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisStream_PublishUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	rs := NewRedisStreamClient(rdb, "", 100)
	defer rs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rs.Publish(ctx, testEvent(swarm.EventVoteCast, "0")); err == nil {
		t.Fatal("expected error publishing to unreachable redis")
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, swarm.Event) error { return f.err }

func TestMulti(t *testing.T) {
	hub := NewHub(testLogger())
	sub := hub.Subscribe(1)
	boom := errors.New("boom")

	m := Multi{failingPublisher{boom}, hub}
	err := m.Publish(context.Background(), testEvent(swarm.EventVoteCast, "0"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if len(sub.C) != 1 {
		t.Error("later publisher skipped after earlier failure")
	}
}
