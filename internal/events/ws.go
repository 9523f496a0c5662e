// File: internal/events/ws.go
// Description: Streams lifecycle events to WebSocket subscribers (progress
// dashboards, caller UIs). The relay is one-directional; inbound frames are
// drained and ignored.

package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
	// Outbound buffer per subscriber and for the relay itself.
	sendBuffer = 256
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Subscribers are local tooling; origin enforcement is left to
		// the deployment's reverse proxy.
		return true
	},
}

// subscriber is a middleman between one websocket connection and the relay.
type subscriber struct {
	id    string
	relay *WSRelay
	conn  *websocket.Conn
	send  chan []byte
}

// WSRelay broadcasts events to all connected subscribers. Implements
// schemas.EventSink; Emit drops rather than blocks when the relay is
// saturated.
type WSRelay struct {
	logger      *zap.Logger
	subscribers map[*subscriber]bool
	broadcast   chan []byte
	register    chan *subscriber
	unregister  chan *subscriber
	// done is closed when Run exits so pump goroutines never block on the
	// register channels of a stopped relay.
	done chan struct{}
	mu   sync.RWMutex
}

// NewWSRelay creates a relay. Run must be started before HandleWS serves.
func NewWSRelay(logger *zap.Logger) *WSRelay {
	return &WSRelay{
		logger:      logger.Named("ws_relay"),
		subscribers: make(map[*subscriber]bool),
		broadcast:   make(chan []byte, sendBuffer),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
	}
}

// Emit serializes the event and queues it for broadcast. Never blocks; a
// saturated relay sheds events instead of stalling the session.
func (m *WSRelay) Emit(ev schemas.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	select {
	case m.broadcast <- payload:
	default:
		m.logger.Warn("Event relay saturated, dropping event", zap.String("type", string(ev.Type)))
	}
}

// Run owns the subscriber set until ctx is cancelled.
func (m *WSRelay) Run(ctx context.Context) {
	m.logger.Info("Event relay started.")
	defer m.logger.Info("Event relay stopped.")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for sub := range m.subscribers {
				close(sub.send)
				delete(m.subscribers, sub)
			}
			m.mu.Unlock()
			return
		case sub := <-m.register:
			m.mu.Lock()
			m.subscribers[sub] = true
			m.mu.Unlock()
			m.logger.Info("Subscriber connected.", zap.String("subscriber_id", sub.id))
		case sub := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.subscribers[sub]; ok {
				delete(m.subscribers, sub)
				close(sub.send)
				m.logger.Info("Subscriber disconnected.", zap.String("subscriber_id", sub.id))
			}
			m.mu.Unlock()
		case payload := <-m.broadcast:
			m.mu.Lock()
			for sub := range m.subscribers {
				select {
				case sub.send <- payload:
				default:
					delete(m.subscribers, sub)
					close(sub.send)
				}
			}
			m.mu.Unlock()
		}
	}
}

// HandleWS upgrades the request and attaches the peer as a subscriber.
func (m *WSRelay) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	sub := &subscriber{
		id:    uuid.New().String(),
		relay: m,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	select {
	case m.register <- sub:
	case <-m.done:
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}

// readPump drains inbound frames to keep pong handling alive. Subscriber
// messages carry no meaning for the relay.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.relay.unregister <- s:
		case <-s.relay.done:
		}
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.relay.logger.Warn("Subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes queued events to the peer with keepalive pings.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Flush anything queued behind this event in the same frame.
			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
