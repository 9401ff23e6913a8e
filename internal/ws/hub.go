package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Envelope is the wire shape of every realtime event, in both directions.
// AckID, when set by the client, asks for an "ack" envelope carrying the
// same id once the event has been processed.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ackId,omitempty"`
}

// conn is the subset of *websocket.Conn the hub needs.
type conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one authenticated websocket connection.
type Session struct {
	UserID string
	Role   string
	Name   string

	writeMu sync.Mutex
	conn    conn
	rooms   map[string]struct{} // guarded by the hub mutex
}

func NewSession(userID, role, name string, c conn) *Session {
	return &Session{
		UserID: userID,
		Role:   role,
		Name:   name,
		conn:   c,
		rooms:  make(map[string]struct{}),
	}
}

// Emit writes one event to the session. Safe for concurrent use; gorilla
// connections allow a single writer at a time.
func (s *Session) Emit(event string, data any) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(Envelope{Event: event, Data: raw})
}

func (s *Session) close() {
	_ = s.conn.Close()
}

// Hub is the process-wide presence registry and room directory. At most one
// session exists per user id; a reconnect replaces (and closes) the previous
// session. Rooms model "currently viewing this conversation": a private
// admin/user channel whose member count drives the delivered-at-send
// heuristic.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[*Session]struct{}),
	}
}

// SetOnline registers the session as the user's current connection.
// Last-connect-wins: any previous session for the same user is closed and
// detached from its rooms without an offline transition.
func (h *Hub) SetOnline(s *Session) {
	h.mu.Lock()
	old := h.sessions[s.UserID]
	h.sessions[s.UserID] = s
	if old != nil {
		h.detachLocked(old)
	}
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
}

// SetOffline removes the session if it is still the user's current one.
// Returns false when a newer connection already replaced it, in which case
// the user is not actually going offline.
func (h *Hub) SetOffline(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.UserID] != s {
		return false
	}
	delete(h.sessions, s.UserID)
	h.detachLocked(s)
	return true
}

// Session returns the user's active session, or nil when offline.
func (h *Hub) Session(userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// Join adds the session to a room.
func (h *Hub) Join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][s] = struct{}{}
	s.rooms[room] = struct{}{}
}

// MemberCount reports how many sessions are currently in the room.
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// EmitToRoom sends the event to every session in the room.
func (h *Hub) EmitToRoom(room, event string, data any) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.Emit(event, data); err != nil {
			log.Debug().Err(err).Str("user", s.UserID).Str("event", event).Msg("room emit failed")
		}
	}
}

// EmitToUser sends the event to the user's active session. Returns false if
// the user is offline; callers treat that as "they will catch up via history
// replay".
func (h *Hub) EmitToUser(userID, event string, data any) bool {
	s := h.Session(userID)
	if s == nil {
		return false
	}
	if err := s.Emit(event, data); err != nil {
		log.Debug().Err(err).Str("user", userID).Str("event", event).Msg("user emit failed")
		return false
	}
	return true
}

// BroadcastAll sends the event to every connected session.
func (h *Hub) BroadcastAll(event string, data any) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Emit(event, data); err != nil {
			log.Debug().Err(err).Str("user", s.UserID).Str("event", event).Msg("broadcast emit failed")
		}
	}
}

// detachLocked removes the session from every room it joined.
func (h *Hub) detachLocked(s *Session) {
	for room := range s.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	s.rooms = make(map[string]struct{})
}
