// Package websocket fans coordination-board events out to connected
// browsers. Sessions subscribe to case and MRN topics over a single
// connection; domain services publish through the EventPublisher interface
// and never see individual sessions.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// sendBuffer is the per-session outbound queue depth. A session that falls
// this far behind starts losing events rather than stalling the hub.
const sendBuffer = 256

// subscribeRequest is the only inbound frame sessions send.
type subscribeRequest struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Session is one connected board client and its topic set.
type Session struct {
	id     string
	topics map[string]struct{}
	send   chan []byte
}

func newSession() *Session {
	return &Session{
		id:     uuid.NewString(),
		topics: make(map[string]struct{}),
		send:   make(chan []byte, sendBuffer),
	}
}

// Hub indexes sessions by topic. All methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	byTopic  map[string]map[*Session]struct{}
	sessions map[*Session]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		byTopic:  make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]struct{}),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	for topic := range s.topics {
		h.index(topic, s)
	}
}

// Unregister drops a session from every topic and closes its send channel.
// Safe to call twice; the second call is a no-op.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	for topic := range s.topics {
		h.unindex(topic, s)
	}
	delete(h.sessions, s)
	close(s.send)
}

// Subscribe adds topics to a registered session.
func (h *Hub) Subscribe(s *Session, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		s.topics[topic] = struct{}{}
		h.index(topic, s)
	}
}

// Unsubscribe removes topics from a registered session.
func (h *Hub) Unsubscribe(s *Session, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		delete(s.topics, topic)
		h.unindex(topic, s)
	}
}

// index and unindex maintain the topic map. Caller must hold h.mu.
func (h *Hub) index(topic string, s *Session) {
	if h.byTopic[topic] == nil {
		h.byTopic[topic] = make(map[*Session]struct{})
	}
	h.byTopic[topic][s] = struct{}{}
}

func (h *Hub) unindex(topic string, s *Session) {
	if subscribers, ok := h.byTopic[topic]; ok {
		delete(subscribers, s)
		if len(subscribers) == 0 {
			delete(h.byTopic, topic)
		}
	}
}

// handleRequest applies an inbound subscribe/unsubscribe frame. Unknown
// actions are ignored.
func (h *Hub) handleRequest(s *Session, req subscribeRequest) {
	switch req.Action {
	case "subscribe":
		h.Subscribe(s, req.Topics...)
	case "unsubscribe":
		h.Unsubscribe(s, req.Topics...)
	}
}

// Broadcast delivers an event to the topic's subscribers. Sessions with a
// full send buffer are skipped; the hub never blocks on a slow client.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.byTopic[topic] {
		select {
		case s.send <- data:
		default:
		}
	}
}

// BroadcastAll delivers an event to every session regardless of topic.
func (h *Hub) BroadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		select {
		case s.send <- data:
		default:
		}
	}
}

// Publish satisfies EventPublisher by broadcasting on the event's topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// TopicSubscribers returns how many sessions follow a topic.
func (h *Hub) TopicSubscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks happen at the CORS layer.
	},
}

// WebSocketHandler upgrades board connections and pumps frames between the
// socket and the hub.
type WebSocketHandler struct {
	hub *Hub
}

// NewWebSocketHandler binds a handler to hub.
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// RegisterRoutes mounts the board endpoint on g.
func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the request, registers a session with no topics,
// and starts the pumps. The client subscribes after connecting.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s := newSession()
	wsh.hub.Register(s)

	go wsh.writePump(s, conn)
	go wsh.readPump(s, conn)

	return nil
}

// readPump consumes subscribe frames until the connection drops, then
// unregisters the session.
func (wsh *WebSocketHandler) readPump(s *Session, conn *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(s)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue // malformed frames are dropped
		}
		wsh.hub.handleRequest(s, req)
	}
}

// writePump drains the session's send channel onto the socket. It exits
// when Unregister closes the channel or a write fails.
func (wsh *WebSocketHandler) writePump(s *Session, conn *gorillawebsocket.Conn) {
	defer conn.Close()
	for message := range s.send {
		if err := conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
