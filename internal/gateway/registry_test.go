package gateway

import (
	"testing"

	"github.com/gorilla/websocket"
)

func TestRegistry_CreateAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()

	a := r.Create(new(websocket.Conn))
	b := r.Create(new(websocket.Conn))
	c := r.Create(new(websocket.Conn))

	if a.ID() != "session-0" || b.ID() != "session-1" || c.ID() != "session-2" {
		t.Errorf("unexpected ids: %q %q %q", a.ID(), b.ID(), c.ID())
	}
	if r.Len() != 3 {
		t.Errorf("expected 3 sessions, got %d", r.Len())
	}
}

func TestRegistry_Lookups(t *testing.T) {
	r := NewRegistry()
	conn := new(websocket.Conn)
	s := r.Create(conn)

	if got := r.Get(s.ID()); got != s {
		t.Error("Get by id returned the wrong session")
	}
	if got := r.GetByConn(conn); got != s {
		t.Error("GetByConn returned the wrong session")
	}
	if r.Get("session-999") != nil {
		t.Error("Get for an unknown id must return nil")
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry()

	a := r.Create(new(websocket.Conn))
	r.Remove(a)
	b := r.Create(new(websocket.Conn))

	if a.ID() == b.ID() {
		t.Errorf("id %q was reused after removal", a.ID())
	}
}

func TestRegistry_RemoveClearsRobotBinding(t *testing.T) {
	r := NewRegistry()
	s := r.Create(new(websocket.Conn))
	r.RegisterRobot("robot-7", s)

	if ids := r.RobotIDs(); len(ids) != 1 || ids[0] != "robot-7" {
		t.Fatalf("expected [robot-7], got %v", ids)
	}

	r.Remove(s)
	if len(r.RobotIDs()) != 0 {
		t.Errorf("robot binding must die with the session, got %v", r.RobotIDs())
	}
	if r.Get(s.ID()) != nil {
		t.Error("session still resolvable after Remove")
	}
}

func TestRegistry_UnregisterRobotOnlyForHolder(t *testing.T) {
	r := NewRegistry()
	first := r.Create(new(websocket.Conn))
	second := r.Create(new(websocket.Conn))

	r.RegisterRobot("robot-1", first)
	r.RegisterRobot("robot-1", second) // re-claim overwrites

	r.UnregisterRobot("robot-1", first)
	if len(r.RobotIDs()) != 1 {
		t.Errorf("non-holder must not release the binding, got %v", r.RobotIDs())
	}

	r.UnregisterRobot("robot-1", second)
	if len(r.RobotIDs()) != 0 {
		t.Errorf("holder release failed, got %v", r.RobotIDs())
	}
	if second.RobotID() != "" {
		t.Errorf("holder session kept robot id %q", second.RobotID())
	}
}

func TestRegistry_LLBEPointerSurvivesRemove(t *testing.T) {
	r := NewRegistry()
	s := r.Create(new(websocket.Conn))
	r.SetLLBE(s)

	r.Remove(s)

	// The stale pointer is kept until the next LLBE authentication.
	if r.LLBE() != s {
		t.Error("LLBE pointer must survive session removal")
	}

	replacement := r.Create(new(websocket.Conn))
	r.SetLLBE(replacement)
	if r.LLBE() != replacement {
		t.Error("a new LLBE authentication must displace the stale pointer")
	}
}
