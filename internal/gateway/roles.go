package gateway

import (
	"github.com/tpbot/gateway/pkg/protocol"
)

// roleCapabilities gates the role-specific message types. ping, user:auth,
// user:update, and the signaling relay are handled before this table applies.
// Types present here but not granted to the caller's role are refused with
// "Not authorized"; types absent entirely are ignored.
var roleCapabilities = map[string]map[string]bool{
	protocol.RoleAdmin: {
		protocol.TypeRobotList:        true,
		protocol.TypeRobotAssign:      true,
		protocol.TypeRobotUnassign:    true,
		protocol.TypeRobotCurrentInfo: true,
		protocol.TypeUserList:         true,
		protocol.TypeUserActiveList:   true,
		protocol.TypeUserAssignParty:  true,
		protocol.TypeControlRequest:   true,
		protocol.TypeControlRelease:   true,
	},
	protocol.RoleUser: {
		protocol.TypeRobotList:      true,
		protocol.TypeControlRequest: true,
		protocol.TypeControlRelease: true,
	},
	protocol.RoleGuest: {
		// View-only: telemetry reaches guests via broadcast, not requests.
	},
	protocol.RoleLLBE: {
		protocol.TypeRobotTelemetry: true,
		protocol.TypeRobotStatus:    true,
		protocol.TypeRobotLogin:     true,
		protocol.TypeRobotLogout:    true,
	},
}

// knownRoleTypes is the union of every capability entry, used to distinguish
// "known but not yours" from "never heard of it".
var knownRoleTypes = func() map[string]bool {
	known := make(map[string]bool)
	for _, caps := range roleCapabilities {
		for t := range caps {
			known[t] = true
		}
	}
	return known
}()

// handleRoleMessage is the role-gated continuation after auth, profile, and
// relay dispatch. Most operations here are deliberate stubs: they answer with
// an explicit "Not implemented" so clients see a deterministic result instead
// of silence.
func (g *Gateway) handleRoleMessage(s *Session, msg *protocol.Message) {
	if !roleCapabilities[s.Role()][msg.Type] {
		if knownRoleTypes[msg.Type] {
			s.Send(map[string]any{
				"type":    msg.Type,
				"success": false,
				"error":   "Not authorized",
			})
			return
		}
		g.logger.Warn("unknown message type",
			"session_id", s.ID(), "role", s.Role(), "type", msg.Type)
		return
	}

	switch msg.Type {
	case protocol.TypeRobotList:
		s.Send(map[string]any{
			"type":   protocol.TypeRobotList,
			"robots": g.registry.RobotIDs(),
		})

	case protocol.TypeRobotLogin:
		g.handleRobotLogin(s, msg)

	case protocol.TypeRobotLogout:
		g.handleRobotLogout(s, msg)

	case protocol.TypeControlRequest:
		g.handleControlRequest(s)

	case protocol.TypeUserList:
		// Operators edit the users table directly; there is no list endpoint.
		s.Send(map[string]any{
			"type":    protocol.TypeUserList,
			"users":   []string{},
			"success": false,
			"error":   "Not implemented",
		})

	default:
		g.sendUnimplemented(s, msg.Type)
	}
}

func (g *Gateway) handleRobotLogin(s *Session, msg *protocol.Message) {
	var req protocol.RobotLogin
	if err := msg.Decode(&req); err != nil || req.RobotID == "" {
		s.Send(map[string]any{
			"type":    protocol.TypeRobotLogin,
			"success": false,
			"error":   "No robotId provided",
		})
		return
	}

	g.registry.RegisterRobot(req.RobotID, s)
	g.logger.Info("robot online", "session_id", s.ID(), "robot_id", req.RobotID)
	s.Send(map[string]any{
		"type":    protocol.TypeRobotLogin,
		"success": true,
		"robotId": req.RobotID,
	})
}

func (g *Gateway) handleRobotLogout(s *Session, msg *protocol.Message) {
	var req protocol.RobotLogin
	if err := msg.Decode(&req); err != nil || req.RobotID == "" {
		s.Send(map[string]any{
			"type":    protocol.TypeRobotLogout,
			"success": false,
			"error":   "No robotId provided",
		})
		return
	}

	g.registry.UnregisterRobot(req.RobotID, s)
	g.logger.Info("robot offline", "session_id", s.ID(), "robot_id", req.RobotID)
	s.Send(map[string]any{
		"type":    protocol.TypeRobotLogout,
		"success": true,
		"robotId": req.RobotID,
	})
}

// handleControlRequest covers the implemented half of the control-grant flow:
// permission and double-grant checks. The grant itself is still a stub.
func (g *Gateway) handleControlRequest(s *Session) {
	if !s.CanRequestControl() {
		s.Send(map[string]any{
			"type":    protocol.TypeControlRequest,
			"success": false,
			"error":   "Not authorized",
		})
		return
	}

	if s.ControlledRobotID() != "" {
		s.Send(map[string]any{
			"type":    protocol.TypeControlRequest,
			"success": true,
			"error":   "Already controlling a robot",
		})
		return
	}

	g.sendUnimplemented(s, protocol.TypeControlRequest)
}

func (g *Gateway) sendUnimplemented(s *Session, msgType string) {
	s.Send(map[string]any{
		"type":    msgType,
		"success": false,
		"error":   "Not implemented",
	})
}
