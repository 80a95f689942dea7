package notifier

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"trading-core/internal/events"
)

// WebSocketSink fans a notification out to every websocket connection a
// user currently has open. Connections register themselves (typically from
// an HTTP upgrade handler) and unregister on disconnect.
type WebSocketSink struct {
	mu    sync.RWMutex
	conns map[string][]*websocket.Conn // userID -> connections
}

// NewWebSocketSink builds an empty sink.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{conns: make(map[string][]*websocket.Conn)}
}

// Register associates a connection with userID. The caller owns the
// connection's lifecycle; Unregister must be called when it closes.
func (w *WebSocketSink) Register(userID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conns[userID] = append(w.conns[userID], conn)
}

// Unregister removes a connection previously passed to Register.
func (w *WebSocketSink) Unregister(userID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	conns := w.conns[userID]
	for i, c := range conns {
		if c == conn {
			w.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(w.conns[userID]) == 0 {
		delete(w.conns, userID)
	}
}

type wireNotification struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
}

// Notify implements Notifier. It writes to every open connection for
// userID; a write failure is logged, not propagated, since one dead socket
// must not block delivery to the user's other sessions.
func (w *WebSocketSink) Notify(ctx context.Context, userID string, event events.Event, payload any) error {
	w.mu.RLock()
	conns := append([]*websocket.Conn(nil), w.conns[userID]...)
	w.mu.RUnlock()

	msg := wireNotification{Event: event, Payload: payload}
	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("notifier websocket write failed: user=%s err=%v", userID, err)
		}
	}
	return nil
}
