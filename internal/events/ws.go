package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ssd-technologies/swarmgov/internal/ratelimit"
	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// WSMessage is the JSON message format sent by WebSocket clients.
type WSMessage struct {
	Type    string          `json:"type"` // "subscribe", "ping"
	Payload json.RawMessage `json:"payload"`
}

// WSResponse is a JSON message sent to WebSocket clients.
type WSResponse struct {
	Type    string `json:"type"` // "event", "subscribed", "pong", "error"
	Payload any    `json:"payload"`
}

// SubscribePayload is the payload for a "subscribe" message.
type SubscribePayload struct {
	Types []swarm.EventType `json:"types"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and streams hub events to the client. Clients may narrow the
// feed with a "subscribe" message; an optional "types" query parameter sets
// the initial filter.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default().With("component", "events")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sub := hub.Subscribe(DefaultBuffer, parseTypes(r.URL.Query()["types"])...)
		defer hub.Unsubscribe(sub)

		out := make(chan WSResponse, 8)
		done := make(chan struct{})
		stopped := make(chan struct{})
		go writeLoop(conn, sub, out, done, stopped, logger)
		defer close(done)

		limiter := ratelimit.New(60, time.Minute)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket read error", "error", err)
				}
				return
			}

			if !limiter.Allow() {
				send(out, stopped, errorResponse("rate limit exceeded"))
				continue
			}

			switch msg.Type {
			case "subscribe":
				var payload SubscribePayload
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					send(out, stopped, errorResponse("invalid subscribe payload"))
					continue
				}
				sub.SetFilter(payload.Types...)
				send(out, stopped, WSResponse{Type: "subscribed", Payload: payload})

			case "ping":
				send(out, stopped, WSResponse{Type: "pong", Payload: map[string]string{"status": "ok"}})

			default:
				send(out, stopped, errorResponse("unknown message type: "+msg.Type))
			}
		}
	}
}

// writeLoop is the only goroutine writing to conn. It closes stopped on
// return.
func writeLoop(conn *websocket.Conn, sub *Subscription, out <-chan WSResponse, done <-chan struct{}, stopped chan<- struct{}, logger *slog.Logger) {
	defer close(stopped)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v WSResponse) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			logger.Warn("websocket write error", "error", err)
			conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if !write(WSResponse{Type: "event", Payload: ev}) {
				return
			}
		case resp := <-out:
			if !write(resp) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func send(out chan<- WSResponse, stopped <-chan struct{}, resp WSResponse) {
	select {
	case out <- resp:
	case <-stopped:
	}
}

func errorResponse(message string) WSResponse {
	return WSResponse{Type: "error", Payload: map[string]string{"error": message}}
}

func parseTypes(values []string) []swarm.EventType {
	var types []swarm.EventType
	for _, v := range values {
		if v != "" {
			types = append(types, swarm.EventType(v))
		}
	}
	return types
}
