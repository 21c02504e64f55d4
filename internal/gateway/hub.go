package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4096
)

// Event names broadcast on /api/events.
const (
	EventLoopStarted    = "loop.started"
	EventLoopTurn       = "loop.turn"
	EventLoopEnded      = "loop.ended"
	EventReplyRequested = "reply.requested"
	EventMessageSent    = "message.sent"
)

// Event is one frame on the events websocket.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoopEvent is the payload of the loop.* events.
type LoopEvent struct {
	RoomID    string `json:"roomId"`
	AgentID   string `json:"agentId,omitempty"`
	AgentName string `json:"agentName,omitempty"`
	Turn      int    `json:"turn,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Hub fans events out to connected websocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*subscriber]bool)}
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcast sends an event to every subscriber. Slow subscribers drop
// events rather than block the caller.
func (h *Hub) Broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("gateway: marshal %s event: %v", name, err)
		return
	}
	frame, err := json.Marshal(Event{Event: name, Payload: data})
	if err != nil {
		log.Printf("gateway: marshal %s event: %v", name, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.clients {
		select {
		case s.send <- frame:
		default:
			log.Printf("gateway: subscriber buffer full, dropping %s", name)
		}
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: websocket upgrade: %v", err)
		return
	}
	s := &subscriber{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[s] = true
	h.mu.Unlock()

	go s.writePump()
	s.readPump()
}

func (h *Hub) remove(s *subscriber) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, s)
		close(s.send)
		h.mu.Unlock()
	})
}

// readPump only services control frames; subscribers never send data.
func (s *subscriber) readPump() {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMsgSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: subscriber disconnected: %v", err)
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
