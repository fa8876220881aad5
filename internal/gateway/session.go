package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tpbot/gateway/internal/auth"
	"github.com/tpbot/gateway/pkg/protocol"
)

// State is the session lifecycle state. Authenticated is terminal except for
// Closed; there is no way back to Unauthenticated on the same connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

// Session is the server-side state for one live connection: identity, role,
// robot/control bookkeeping, and the owning transport handle.
type Session struct {
	id       string
	registry *Registry

	mu                sync.Mutex
	conn              *websocket.Conn
	state             State
	username          string
	displayName       string
	role              string
	robotID           string
	controlledRobotID string
	canRequestControl bool
	party             string

	closeOnce      sync.Once
	cbMu           sync.Mutex
	closeCallbacks []func(*Session)
}

func newSession(id string, conn *websocket.Conn, r *Registry) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		registry: r,
		// Flipped to the role-derived value at authentication time.
		canRequestControl: true,
	}
}

// ID returns the session id, unique for the process lifetime.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the session has completed user:auth.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated
}

// Identity returns the cached display name and role set at authentication.
func (s *Session) Identity() (name, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName, s.role
}

// Username returns the authenticated username, or "".
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Role returns the authenticated role, or "".
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// RobotID returns the robot id this session claimed, or "".
func (s *Session) RobotID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.robotID
}

// ControlledRobotID returns the robot this operator currently controls, or "".
func (s *Session) ControlledRobotID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlledRobotID
}

// CanRequestControl reports whether this session may request robot control.
func (s *Session) CanRequestControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canRequestControl
}

// Party returns the opaque grouping id, or "".
func (s *Session) Party() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.party
}

// setIdentity records the authenticated identity. Called exactly once per
// connection; re-authentication short-circuits before reaching here.
func (s *Session) setIdentity(u *auth.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = u.Username
	s.displayName = u.Name
	s.role = u.Role
	s.canRequestControl = u.Role == protocol.RoleAdmin || u.Role == protocol.RoleUser
	s.state = StateAuthenticated
}

func (s *Session) setRobotID(id string) {
	s.mu.Lock()
	s.robotID = id
	s.mu.Unlock()
}

func (s *Session) connRef() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// OnClose registers a listener invoked exactly once when the session closes.
func (s *Session) OnClose(cb func(*Session)) {
	s.cbMu.Lock()
	s.closeCallbacks = append(s.closeCallbacks, cb)
	s.cbMu.Unlock()
}

// Send marshals v and writes it as a text frame. Writes after close are
// silently dropped; a transport error is the peer's problem to notice.
func (s *Session) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close control frame with the given code and reason, tears
// down the connection, removes the session from the registry, and fires the
// close callbacks. Safe to call from either the handler path (policy
// violations) or the read loop (peer disconnect); only the first call acts.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.state = StateClosed
		s.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), deadline)
			_ = conn.Close()
		}

		s.registry.remove(s, conn)

		s.cbMu.Lock()
		cbs := s.closeCallbacks
		s.closeCallbacks = nil
		s.cbMu.Unlock()
		for _, cb := range cbs {
			cb(s)
		}
	})
}
