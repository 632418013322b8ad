// Package hub fans events out to the websocket subscribers of each room.
// The hub only pushes; ordering and persistence belong to the event log,
// which every event passes through before it reaches Broadcast.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feliven/coffeetable/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 45 * time.Second

	// sendBuffer bounds the per-subscriber queue; a subscriber that cannot
	// drain it gets disconnected rather than stalling the room.
	sendBuffer = 64
)

type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		rooms: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscriber is one websocket attached to one room.
type Subscriber struct {
	hub  *Hub
	code string
	conn *websocket.Conn

	send      chan domain.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// Register attaches a connection to a room and starts its write pump. The
// caller keeps ownership of the read side.
func (h *Hub) Register(code string, conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		hub:  h,
		code: code,
		conn: conn,
		send: make(chan domain.Envelope, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.rooms[code]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[code] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	go s.writePump()
	return s
}

// Broadcast queues an envelope to every subscriber of the room. Subscribers
// with a full queue are dropped; they can rejoin over pull.
func (h *Hub) Broadcast(code string, env domain.Envelope) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.rooms[code]))
	for s := range h.rooms[code] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.send <- env:
		default:
			h.log.Debug("dropping slow subscriber", "room", code)
			s.Close()
		}
	}
}

// Subscribers reports how many sockets a room currently has.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

func (h *Hub) unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[s.code]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.rooms, s.code)
	}
}

// Close detaches the subscriber and closes its socket. Idempotent; the read
// loop and the write pump both call it on failure.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.hub.unregister(s)
		close(s.done)
		s.conn.Close()
	})
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case env := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
