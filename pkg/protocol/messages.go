// Package protocol defines the wire messages exchanged between browser
// operators, the LLBE node, and the gateway over WebSocket.
//
// Frames are flat JSON objects with a mandatory "type" field that determines
// which of the remaining fields are meaningful. There is no envelope: replies
// carry the type of the request they answer plus a "success" flag where the
// protocol calls for one.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type constants.
const (
	TypePing = "ping"
	TypePong = "pong"

	TypeUserAuth   = "user:auth"
	TypeUserUpdate = "user:update"

	TypeWebRTCSDP = "webrtc:sdp"
	TypeWebRTCICE = "webrtc:ice"

	TypeRobotList        = "robot:list"
	TypeRobotAssign      = "robot:assign"
	TypeRobotUnassign    = "robot:unassign"
	TypeRobotCurrentInfo = "robot:current_info"
	TypeRobotTelemetry   = "robot:telemetry"
	TypeRobotStatus      = "robot:status"
	TypeRobotLogin       = "robot:login"
	TypeRobotLogout      = "robot:logout"

	TypeUserList        = "user:list"
	TypeUserActiveList  = "user:active_list"
	TypeUserAssignParty = "user:assign_party"

	TypeControlRequest = "control:request"
	TypeControlRelease = "control:release"
)

// Roles assigned by the credential store.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
	RoleLLBE  = "llbe"
)

// TargetLLBE is the relay target browsers use to address signaling messages
// at the LLBE node.
const TargetLLBE = "llbe"

// Message is one parsed inbound frame. The frame is kept in raw form so
// handlers can decode it strictly into a typed payload, or echo fields they
// do not interpret.
type Message struct {
	Type string
	raw  json.RawMessage
}

// Parse decodes a frame far enough to learn its type. It fails on anything
// that is not a JSON object with a string "type" field.
func Parse(data []byte) (*Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf(`frame missing "type" field`)
	}
	return &Message{Type: head.Type, raw: append(json.RawMessage(nil), data...)}, nil
}

// Decode unmarshals the full frame into a typed payload struct.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.raw, v)
}

// Fields returns the frame as a generic map for handlers that echo arbitrary
// fields back to the sender.
func (m *Message) Fields() map[string]any {
	var f map[string]any
	if err := json.Unmarshal(m.raw, &f); err != nil {
		return map[string]any{"type": m.Type}
	}
	return f
}

// UserAuth carries login credentials.
type UserAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserUpdate carries a profile change. Nil fields are left untouched.
type UserUpdate struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// WebRTCSDP is a session-description frame in either relay direction.
// Browsers address the LLBE node with Target; the LLBE node addresses a
// browser session with SessionID. The SDP payload is relayed without
// interpretation.
type WebRTCSDP struct {
	Target    string          `json:"target,omitempty"`
	SessionID string          `json:"sessionid,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
}

// WebRTCICE is an ICE-candidate frame in either relay direction. Candidate
// arrives either as a bare string or as an RTCIceCandidate-like object.
type WebRTCICE struct {
	Target        string          `json:"target,omitempty"`
	SessionID     string          `json:"sessionid,omitempty"`
	Candidate     json.RawMessage `json:"candidate,omitempty"`
	SdpMid        string          `json:"sdpMid,omitempty"`
	SdpMLineIndex *int            `json:"sdpMLineIndex,omitempty"`
}

// RobotLogin announces a robot coming online behind the LLBE node. The same
// shape serves robot:logout.
type RobotLogin struct {
	RobotID string `json:"robotId"`
}

// NormalizeSDP wraps a bare-string session description in the structured
// {type, sdp} form browsers expect. A bare string from the LLBE node is
// always an answer. Structured payloads pass through unchanged.
func NormalizeSDP(sdp json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(sdp, &s); err == nil {
		out, _ := json.Marshal(map[string]string{"type": "answer", "sdp": s})
		return out
	}
	return sdp
}

// ICECandidate is the normalized candidate form: a plain candidate string
// plus separate mid/index fields.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SdpMid        string `json:"sdpMid,omitempty"`
	SdpMLineIndex *int   `json:"sdpMLineIndex,omitempty"`
}

// NormalizeCandidate flattens the two candidate shapes clients send into one
// ICECandidate. outerMid and outerIndex fill in fields the inner object form
// did not carry (or that a bare string cannot carry at all).
func NormalizeCandidate(raw json.RawMessage, outerMid string, outerIndex *int) (ICECandidate, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ICECandidate{Candidate: s, SdpMid: outerMid, SdpMLineIndex: outerIndex}, nil
	}
	var obj ICECandidate
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ICECandidate{}, fmt.Errorf("unrecognized candidate payload")
	}
	if obj.SdpMid == "" {
		obj.SdpMid = outerMid
	}
	if obj.SdpMLineIndex == nil {
		obj.SdpMLineIndex = outerIndex
	}
	return obj, nil
}
