package hub

import (
	"reflect"
	"testing"
)

func newTestHub() *Hub {
	return New(Conf{GatewayID: "gw-test", SendQueue: 8})
}

func TestDisconnectCascade(t *testing.T) {
	h := newTestHub()
	defer h.Close()

	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")
	h.Presence.Register(a)
	h.Presence.Register(b)
	h.Rooms.Join(a, "general")
	h.Rooms.Join(b, "general")
	h.Typing.Set("general", "alice", true)

	departures := h.Disconnect(a)
	if len(departures) != 1 || departures[0].Room != "general" || departures[0].Remaining != 1 {
		t.Fatalf("departures=%+v", departures)
	}
	if h.Presence.Online("u1") {
		t.Fatal("presence entry survived disconnect")
	}
	if h.Rooms.InRoom(a.ConnID, "general") {
		t.Fatal("room membership survived disconnect")
	}
	if got := h.Typing.List("general"); len(got) != 0 {
		t.Fatalf("typing set survived disconnect: %v", got)
	}
	if err := a.Enqueue([]byte("x")); err == nil {
		t.Fatal("enqueue after disconnect should fail")
	}
	// Untouched parties stay put.
	if !h.Presence.Online("u2") || !h.Rooms.InRoom(b.ConnID, "general") {
		t.Fatal("disconnect cascade touched another connection")
	}
}

func TestOnlineUsernamesExcludesSuperseded(t *testing.T) {
	h := newTestHub()
	defer h.Close()

	stale := newTestClient("u1", "alice")
	fresh := newTestClient("u1", "alice")
	bob := newTestClient("u2", "bob")

	h.Presence.Register(stale)
	h.Rooms.Join(stale, "general")
	h.Presence.Register(fresh) // supersedes stale, fresh never joins
	h.Presence.Register(bob)
	h.Rooms.Join(bob, "general")

	got := h.OnlineUsernames("general")
	if !reflect.DeepEqual(got, []string{"bob"}) {
		t.Fatalf("online=%v, want [bob]", got)
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	c := NewClient(nil, 1)
	if err := c.Enqueue([]byte("a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := c.Enqueue([]byte("b")); err == nil {
		t.Fatal("enqueue into a full queue should fail, not block")
	}
}
