package gateway

import (
	"encoding/json"

	"github.com/tpbot/gateway/pkg/protocol"
)

// The signaling relay forwards session-description and ICE-candidate frames
// between exactly two parties: a browser session and the single LLBE session.
// Payloads are never interpreted, only normalized. There is no retry and no
// buffering; a missing counterpart means the frame is dropped, with an error
// reply on the SDP path and silently on the ICE path.

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// relaySDP routes a webrtc:sdp frame. Returns true when the frame was
// consumed (forwarded, answered, or dropped); false hands it back to the
// dispatcher as unhandled.
func (g *Gateway) relaySDP(s *Session, msg *protocol.Message) bool {
	var req protocol.WebRTCSDP
	if err := msg.Decode(&req); err != nil {
		g.logger.Warn("malformed webrtc:sdp frame", "session_id", s.ID(), "error", err)
		return true
	}

	// The LLBE side addresses a browser session by id; sessionid takes
	// precedence but target is accepted as an alias.
	if g.registry.LLBE() == s {
		targetID := req.SessionID
		if targetID == "" {
			targetID = req.Target
		}
		if targetID == "" {
			// No return address to blame, so no reply either.
			g.logger.Warn("webrtc:sdp from LLBE without sessionid", "session_id", s.ID())
			return true
		}

		target := g.registry.Get(targetID)
		if target == nil {
			g.logger.Warn("webrtc:sdp dropped, target session gone",
				"session_id", s.ID(), "target", targetID)
			return true
		}

		target.Send(map[string]any{
			"type":   protocol.TypeWebRTCSDP,
			"sdp":    protocol.NormalizeSDP(req.SDP),
			"target": protocol.TargetLLBE,
		})
		return true
	}

	if req.Target == protocol.TargetLLBE {
		llbe := g.registry.LLBE()
		if llbe == nil {
			s.Send(map[string]any{
				"type":    protocol.TypeWebRTCSDP,
				"target":  protocol.TargetLLBE,
				"success": false,
				"error":   "No LLBE connection available",
			})
			return true
		}

		if isNullJSON(req.SDP) {
			s.Send(map[string]any{
				"type":    protocol.TypeWebRTCSDP,
				"target":  protocol.TargetLLBE,
				"success": false,
				"error":   "No SDP provided",
			})
			return true
		}

		llbe.Send(map[string]any{
			"type":      protocol.TypeWebRTCSDP,
			"sessionid": s.ID(),
			"sdp":       req.SDP,
		})
		return true
	}

	g.logger.Warn("unsupported webrtc:sdp routing",
		"session_id", s.ID(), "target", req.Target)
	return false
}

// relayICE mirrors relaySDP. ICE drops are silent toward the sender; only
// the SDP path reports missing counterparts back.
func (g *Gateway) relayICE(s *Session, msg *protocol.Message) bool {
	var req protocol.WebRTCICE
	if err := msg.Decode(&req); err != nil {
		g.logger.Warn("malformed webrtc:ice frame", "session_id", s.ID(), "error", err)
		return true
	}

	if g.registry.LLBE() == s {
		targetID := req.SessionID
		if targetID == "" {
			targetID = req.Target
		}
		if targetID == "" {
			g.logger.Warn("webrtc:ice from LLBE without sessionid", "session_id", s.ID())
			return true
		}

		target := g.registry.Get(targetID)
		if target == nil {
			g.logger.Warn("webrtc:ice dropped, target session gone",
				"session_id", s.ID(), "target", targetID)
			return true
		}

		if isNullJSON(req.Candidate) {
			g.logger.Warn("webrtc:ice from LLBE without candidate", "session_id", s.ID())
			return true
		}

		// Browsers want the object form: pass a structured candidate through,
		// lift a bare string into one using the outer mid/index fields.
		var candidate any = req.Candidate
		var bare string
		if err := json.Unmarshal(req.Candidate, &bare); err == nil {
			candidate = protocol.ICECandidate{
				Candidate:     bare,
				SdpMid:        req.SdpMid,
				SdpMLineIndex: req.SdpMLineIndex,
			}
		}

		target.Send(map[string]any{
			"type":      protocol.TypeWebRTCICE,
			"candidate": candidate,
			"target":    protocol.TargetLLBE,
		})
		return true
	}

	if req.Target == protocol.TargetLLBE {
		llbe := g.registry.LLBE()
		if llbe == nil {
			g.logger.Warn("webrtc:ice dropped, no LLBE connection", "session_id", s.ID())
			return true
		}

		if isNullJSON(req.Candidate) {
			g.logger.Warn("webrtc:ice without candidate", "session_id", s.ID())
			return true
		}

		cand, err := protocol.NormalizeCandidate(req.Candidate, req.SdpMid, req.SdpMLineIndex)
		if err != nil {
			g.logger.Warn("webrtc:ice candidate normalization failed",
				"session_id", s.ID(), "error", err)
			return true
		}

		llbe.Send(map[string]any{
			"type":          protocol.TypeWebRTCICE,
			"sessionid":     s.ID(),
			"candidate":     cand.Candidate,
			"sdpMid":        cand.SdpMid,
			"sdpMLineIndex": cand.SdpMLineIndex,
		})
		return true
	}

	g.logger.Warn("unsupported webrtc:ice routing",
		"session_id", s.ID(), "target", req.Target)
	return false
}
