package gateway

import (
	"testing"
)

// offerAnswer runs the full signaling handshake: browser offer, LLBE answer.
func TestSDPRelay_OfferAnswer(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type":   "webrtc:sdp",
		"target": "llbe",
		"sdp":    map[string]any{"type": "offer", "sdp": "v=0 offer"},
	})

	fwd := readJSON(t, llbe)
	if fwd["type"] != "webrtc:sdp" {
		t.Fatalf("unexpected frame at LLBE: %v", fwd)
	}
	sid, ok := fwd["sessionid"].(string)
	if !ok || sid == "" {
		t.Fatalf("forwarded offer must carry the browser session id, got %v", fwd)
	}
	if _, present := fwd["target"]; present {
		t.Errorf("LLBE-bound frames must not carry target, got %v", fwd)
	}
	sdp, ok := fwd["sdp"].(map[string]any)
	if !ok || sdp["type"] != "offer" || sdp["sdp"] != "v=0 offer" {
		t.Errorf("offer payload must pass through untouched, got %v", fwd["sdp"])
	}
	if env.g.Registry().Get(sid) == nil {
		t.Errorf("session id %q does not resolve", sid)
	}

	// The LLBE node answers with a bare SDP string.
	sendJSON(t, llbe, map[string]any{
		"type":      "webrtc:sdp",
		"sessionid": sid,
		"sdp":       "v=0 answer",
	})

	back := readJSON(t, browser)
	if back["type"] != "webrtc:sdp" || back["target"] != "llbe" {
		t.Fatalf("unexpected frame at browser: %v", back)
	}
	desc, ok := back["sdp"].(map[string]any)
	if !ok || desc["type"] != "answer" || desc["sdp"] != "v=0 answer" {
		t.Errorf("bare answer string must be lifted to {type, sdp}, got %v", back["sdp"])
	}
}

func TestSDPRelay_TargetAliasFromLLBE(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type": "webrtc:sdp", "target": "llbe",
		"sdp": map[string]any{"type": "offer", "sdp": "x"},
	})
	fwd := readJSON(t, llbe)
	sid := fwd["sessionid"].(string)

	// target works as an alias for sessionid on the LLBE side.
	sendJSON(t, llbe, map[string]any{
		"type":   "webrtc:sdp",
		"target": sid,
		"sdp":    map[string]any{"type": "answer", "sdp": "y"},
	})

	back := readJSON(t, browser)
	if desc, ok := back["sdp"].(map[string]any); !ok || desc["sdp"] != "y" {
		t.Errorf("alias-addressed answer not delivered, got %v", back)
	}
}

func TestSDPRelay_NoLLBE(t *testing.T) {
	env := newTestEnv(t)
	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type": "webrtc:sdp", "target": "llbe",
		"sdp": map[string]any{"type": "offer", "sdp": "x"},
	})

	reply := readJSON(t, browser)
	if reply["success"] != false || reply["error"] != "No LLBE connection available" {
		t.Errorf("unexpected reply: %v", reply)
	}
	if reply["target"] != "llbe" {
		t.Errorf("error reply must carry target llbe, got %v", reply)
	}

	sendJSON(t, browser, map[string]any{"type": "ping"})
	if pong := readJSON(t, browser); pong["type"] != "pong" {
		t.Errorf("connection should stay open after the error, got %v", pong)
	}
}

func TestSDPRelay_NoSDP(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{"type": "webrtc:sdp", "target": "llbe"})
	reply := readJSON(t, browser)
	if reply["success"] != false || reply["error"] != "No SDP provided" {
		t.Errorf("unexpected reply: %v", reply)
	}
}

func TestSDPRelay_LLBEToMissingSessionSilent(t *testing.T) {
	env := newTestEnv(t)
	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	sendJSON(t, llbe, map[string]any{
		"type": "webrtc:sdp", "sessionid": "session-999", "sdp": "v=0",
	})
	sendJSON(t, llbe, map[string]any{"type": "ping"})

	if reply := readJSON(t, llbe); reply["type"] != "pong" {
		t.Errorf("drop toward a gone session must be silent, got %v", reply)
	}
}

func TestICERelay_BrowserObjectForm(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type":   "webrtc:ice",
		"target": "llbe",
		"candidate": map[string]any{
			"candidate":        "candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host",
			"sdpMid":           "0",
			"sdpMLineIndex":    0,
			"usernameFragment": "abcd",
		},
	})

	fwd := readJSON(t, llbe)
	if fwd["type"] != "webrtc:ice" {
		t.Fatalf("unexpected frame: %v", fwd)
	}
	if fwd["candidate"] != "candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host" {
		t.Errorf("candidate must flatten to a string, got %v", fwd["candidate"])
	}
	if fwd["sdpMid"] != "0" || fwd["sdpMLineIndex"] != float64(0) {
		t.Errorf("mid/index must surface as top-level fields, got %v", fwd)
	}
	if sid, _ := fwd["sessionid"].(string); sid == "" {
		t.Errorf("forwarded candidate must carry the session id, got %v", fwd)
	}
}

func TestICERelay_BrowserBareString(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type":          "webrtc:ice",
		"target":        "llbe",
		"candidate":     "candidate:9",
		"sdpMid":        "1",
		"sdpMLineIndex": 2,
	})

	fwd := readJSON(t, llbe)
	if fwd["candidate"] != "candidate:9" || fwd["sdpMid"] != "1" || fwd["sdpMLineIndex"] != float64(2) {
		t.Errorf("bare-string candidate must keep the outer mid/index, got %v", fwd)
	}
}

func TestICERelay_LLBEBareStringToBrowser(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	// Learn the browser session id via an offer round-trip.
	sendJSON(t, browser, map[string]any{
		"type": "webrtc:sdp", "target": "llbe",
		"sdp": map[string]any{"type": "offer", "sdp": "x"},
	})
	sid := readJSON(t, llbe)["sessionid"].(string)

	sendJSON(t, llbe, map[string]any{
		"type":          "webrtc:ice",
		"sessionid":     sid,
		"candidate":     "candidate:5",
		"sdpMid":        "0",
		"sdpMLineIndex": 1,
	})

	back := readJSON(t, browser)
	if back["type"] != "webrtc:ice" || back["target"] != "llbe" {
		t.Fatalf("unexpected frame: %v", back)
	}
	cand, ok := back["candidate"].(map[string]any)
	if !ok {
		t.Fatalf("browsers get the object form, got %v", back["candidate"])
	}
	if cand["candidate"] != "candidate:5" || cand["sdpMid"] != "0" || cand["sdpMLineIndex"] != float64(1) {
		t.Errorf("unexpected candidate object: %v", cand)
	}
}

func TestICERelay_LLBEObjectPassthrough(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type": "webrtc:sdp", "target": "llbe",
		"sdp": map[string]any{"type": "offer", "sdp": "x"},
	})
	sid := readJSON(t, llbe)["sessionid"].(string)

	sendJSON(t, llbe, map[string]any{
		"type":      "webrtc:ice",
		"sessionid": sid,
		"candidate": map[string]any{"candidate": "candidate:6", "sdpMid": "video"},
	})

	back := readJSON(t, browser)
	cand, ok := back["candidate"].(map[string]any)
	if !ok || cand["candidate"] != "candidate:6" || cand["sdpMid"] != "video" {
		t.Errorf("object candidates must pass through untouched, got %v", back["candidate"])
	}
}

func TestICERelay_NoLLBESilentDrop(t *testing.T) {
	env := newTestEnv(t)
	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{
		"type": "webrtc:ice", "target": "llbe", "candidate": "candidate:1",
	})
	sendJSON(t, browser, map[string]any{"type": "ping"})

	if reply := readJSON(t, browser); reply["type"] != "pong" {
		t.Errorf("candidate drop without an LLBE node must be silent, got %v", reply)
	}
}

func TestICERelay_MissingCandidateSilentDrop(t *testing.T) {
	env := newTestEnv(t)

	llbe := env.dial(t)
	login(t, llbe, "llbe-node", "llbepw")

	browser := env.dial(t)
	login(t, browser, "op", "oppw")

	sendJSON(t, browser, map[string]any{"type": "webrtc:ice", "target": "llbe"})
	sendJSON(t, browser, map[string]any{"type": "ping"})

	if reply := readJSON(t, browser); reply["type"] != "pong" {
		t.Errorf("candidate-less frames must be dropped silently, got %v", reply)
	}
}
