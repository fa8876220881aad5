package gateway

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Registry is the process-wide table of live sessions: by id, by connection,
// by claimed robot id, plus the single designated LLBE session. All access
// goes through the mutex; handler code never sees the maps directly.
type Registry struct {
	mu      sync.RWMutex
	counter uint64
	byID    map[string]*Session
	byConn  map[*websocket.Conn]*Session
	robots  map[string]*Session
	llbe    *Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Session),
		byConn: make(map[*websocket.Conn]*Session),
		robots: make(map[string]*Session),
	}
}

// Create allocates a Session for a freshly upgraded connection and registers
// it. Session ids are never reused for the lifetime of the process.
func (r *Registry) Create(conn *websocket.Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := fmt.Sprintf("session-%d", r.counter)
	r.counter++

	s := newSession(id, conn, r)
	r.byID[id] = s
	r.byConn[conn] = s
	return s
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GetByConn returns the session owning the given connection, or nil.
func (r *Registry) GetByConn(conn *websocket.Conn) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[conn]
}

// Remove drops the session from the id, connection, and robot maps. The LLBE
// pointer is left alone even when the departing session is the LLBE session;
// it stays stale until the next LLBE authentication overwrites it.
func (r *Registry) Remove(s *Session) {
	r.remove(s, s.connRef())
}

// remove takes the connection explicitly because Session.Close clears its
// handle before unregistering.
func (r *Registry) remove(s *Session, conn *websocket.Conn) {
	robotID := s.RobotID()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, s.ID())
	if conn != nil {
		delete(r.byConn, conn)
	}
	if robotID != "" {
		delete(r.robots, robotID)
	}
}

// SetLLBE designates the session as the relay counterpart for all browser
// signaling. The last session to authenticate with the LLBE role wins; the
// displaced session is not notified.
func (r *Registry) SetLLBE(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llbe = s
}

// LLBE returns the current LLBE session, or nil.
func (r *Registry) LLBE() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llbe
}

// RegisterRobot binds a robot id to the session that claimed it. A robot id
// maps to at most one session at a time; a re-claim overwrites. A session
// holds at most one robot id, so claiming a new one releases the previous.
func (r *Registry) RegisterRobot(robotID string, s *Session) {
	prev := s.RobotID()
	r.mu.Lock()
	if prev != "" && prev != robotID && r.robots[prev] == s {
		delete(r.robots, prev)
	}
	r.robots[robotID] = s
	r.mu.Unlock()
	s.setRobotID(robotID)
}

// UnregisterRobot removes the robot binding if it is held by the session.
func (r *Registry) UnregisterRobot(robotID string, s *Session) {
	r.mu.Lock()
	held := r.robots[robotID] == s
	if held {
		delete(r.robots, robotID)
	}
	r.mu.Unlock()
	if held {
		s.setRobotID("")
	}
}

// RobotIDs lists the ids of currently connected robots.
func (r *Registry) RobotIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.robots))
	for id := range r.robots {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
