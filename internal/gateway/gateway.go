// Package gateway accepts persistent WebSocket connections from browser
// operators, the LLBE node, and robot identities, and drives the per-session
// authentication, role-gated dispatch, and signaling-relay state machine.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tpbot/gateway/internal/auth"
	"github.com/tpbot/gateway/pkg/protocol"
)

// CredentialStore is the external collaborator used for authentication and
// profile updates.
type CredentialStore interface {
	// Authenticate returns (nil, nil) for bad credentials; errors mean the
	// store itself failed.
	Authenticate(ctx context.Context, username, password string) (*auth.UserRecord, error)
	// UpdateProfile returns auth.ErrNotFound for an unknown username.
	UpdateProfile(ctx context.Context, username string, name, password *string) error
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients (LLBE, robots)
			}
			return originSet[origin]
		},
	}
}

// Gateway owns the registry and the per-connection read loops.
type Gateway struct {
	registry *Registry
	creds    CredentialStore
	logger   *slog.Logger
	upgrader websocket.Upgrader

	maxMessageBytes int64
	authTimeout     time.Duration
}

// Options configures the Gateway.
type Options struct {
	AllowedOrigins  []string      // for WebSocket origin check
	MaxMessageBytes int64         // max WebSocket frame size (default 64KB)
	AuthTimeout     time.Duration // close connections still unauthenticated after this; 0 disables
}

// New creates a new Gateway.
func New(reg *Registry, creds CredentialStore, logger *slog.Logger, opts Options) *Gateway {
	limit := opts.MaxMessageBytes
	if limit == 0 {
		limit = 64 * 1024 // 64KB default
	}

	return &Gateway{
		registry:        reg,
		creds:           creds,
		logger:          logger.With("component", "gateway"),
		upgrader:        makeUpgrader(opts.AllowedOrigins),
		maxMessageBytes: limit,
		authTimeout:     opts.AuthTimeout,
	}
}

// Registry exposes the session registry to the orchestrator and tests.
func (g *Gateway) Registry() *Registry { return g.registry }

// HandleWS upgrades the request and runs the connection's read loop until
// either side closes. Non-upgrade requests get HTTP 400.
func (g *Gateway) HandleWS(w http.ResponseWriter, req *http.Request) {
	if !websocket.IsWebSocketUpgrade(req) {
		http.Error(w, "not a websocket handshake", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, req, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(g.maxMessageBytes)

	sess := g.registry.Create(conn)
	g.logger.Info("client connected", "session_id", sess.ID())

	if g.authTimeout > 0 {
		timer := time.AfterFunc(g.authTimeout, func() {
			if !sess.Authenticated() {
				g.logger.Warn("authentication timeout", "session_id", sess.ID())
				sess.Close(websocket.ClosePolicyViolation, "authentication timeout")
			}
		})
		defer timer.Stop()
	}

	defer func() {
		// Peer-initiated close or read error: tear down without a close
		// frame of our own. No-op when a handler already closed the session.
		sess.Close(websocket.CloseNormalClosure, "")
		g.logger.Info("client disconnected", "session_id", sess.ID())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, perr := protocol.Parse(data)
		if perr != nil {
			g.logger.Warn("invalid payload", "session_id", sess.ID(), "error", perr)
			sess.Close(websocket.CloseUnsupportedData, "invalid payload")
			return
		}

		target := g.registry.GetByConn(conn)
		if target == nil {
			// Should not normally happen: the session vanished out from
			// under a live connection.
			g.logger.Warn("no session for connection", "session_id", sess.ID())
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session"), deadline)
			_ = conn.Close()
			return
		}

		g.handleMessage(target, msg)

		if target.State() == StateClosed {
			return
		}
	}
}

// handleMessage is the dispatch order for every inbound message: ping and
// user:auth are always permitted; everything else requires authentication,
// then flows through profile updates, the signaling relay, and finally the
// role capability table. Unknown types are logged and silently ignored.
func (g *Gateway) handleMessage(s *Session, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypePing:
		g.handlePing(s, msg)
		return
	case protocol.TypeUserAuth:
		g.handleAuth(s, msg)
		return
	}

	if !s.Authenticated() {
		s.Send(map[string]any{
			"type":    msg.Type,
			"success": false,
			"error":   "Not authenticated",
		})
		s.Close(websocket.ClosePolicyViolation, "not authenticated")
		return
	}

	switch msg.Type {
	case protocol.TypeUserUpdate:
		g.handleUserUpdate(s, msg)
		return
	case protocol.TypeWebRTCSDP:
		if g.relaySDP(s, msg) {
			return
		}
	case protocol.TypeWebRTCICE:
		if g.relayICE(s, msg) {
			return
		}
	}

	g.handleRoleMessage(s, msg)
}

// handlePing echoes the frame back with type pong, a fresh server timestamp,
// and the original timestamp moved to incomingTimestamp. Permitted in every
// state, including before authentication.
func (g *Gateway) handlePing(s *Session, msg *protocol.Message) {
	reply := msg.Fields()
	if ts, ok := reply["timestamp"]; ok {
		reply["incomingTimestamp"] = ts
	}
	reply["type"] = protocol.TypePong
	reply["timestamp"] = time.Now().UnixMilli()
	s.Send(reply)
}

func (g *Gateway) handleAuth(s *Session, msg *protocol.Message) {
	// Re-authentication echoes the cached identity; the credential store is
	// not queried again.
	if s.Authenticated() {
		name, role := s.Identity()
		s.Send(map[string]any{
			"type":    protocol.TypeUserAuth,
			"success": true,
			"name":    name,
			"role":    role,
		})
		return
	}

	var req protocol.UserAuth
	if err := msg.Decode(&req); err != nil {
		s.Send(map[string]any{"type": protocol.TypeUserAuth, "success": false})
		return
	}

	user, err := g.creds.Authenticate(context.Background(), req.Username, req.Password)
	if err != nil {
		g.logger.Error("authentication error", "session_id", s.ID(), "error", err)
		s.Send(map[string]any{"type": protocol.TypeUserAuth, "success": false})
		return
	}
	if user == nil {
		s.Send(map[string]any{"type": protocol.TypeUserAuth, "success": false})
		return
	}

	s.setIdentity(user)
	if user.Role == protocol.RoleLLBE {
		g.registry.SetLLBE(s)
		g.logger.Info("LLBE session designated", "session_id", s.ID())
	}

	g.logger.Info("session authenticated",
		"session_id", s.ID(), "username", user.Username, "role", user.Role)

	s.Send(map[string]any{
		"type":    protocol.TypeUserAuth,
		"success": true,
		"name":    user.Name,
		"role":    user.Role,
	})
}

func (g *Gateway) handleUserUpdate(s *Session, msg *protocol.Message) {
	var req protocol.UserUpdate
	if err := msg.Decode(&req); err != nil {
		s.Send(map[string]any{"type": protocol.TypeUserUpdate, "success": false})
		return
	}

	err := g.creds.UpdateProfile(context.Background(), s.Username(), req.Name, req.Password)
	if err != nil {
		g.logger.Warn("profile update failed",
			"session_id", s.ID(), "username", s.Username(), "error", err)
		s.Send(map[string]any{"type": protocol.TypeUserUpdate, "success": false})
		return
	}

	s.Send(map[string]any{"type": protocol.TypeUserUpdate, "success": true})
}
