package hub

import (
	"testing"
)

func newTestClient(userID, username string) *Client {
	c := NewClient(nil, 8)
	if userID != "" {
		c.BindIdentity(userID, username)
	}
	return c
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case data := <-c.Send:
			out = append(out, data)
		default:
			return out
		}
	}
}

func TestJoinCreatesRoomAndCounts(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")

	n, already := r.Join(a, "general")
	if n != 1 || already {
		t.Fatalf("first join: got count=%d already=%v", n, already)
	}
	n, already = r.Join(b, "general")
	if n != 2 || already {
		t.Fatalf("second join: got count=%d already=%v", n, already)
	}
	if !r.InRoom(a.ConnID, "general") || !r.InRoom(b.ConnID, "general") {
		t.Fatal("members not tracked")
	}
}

func TestJoinIdempotentPerConnection(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")

	r.Join(a, "general")
	n, already := r.Join(a, "general")
	if n != 1 || !already {
		t.Fatalf("re-join: got count=%d already=%v, want 1 true", n, already)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")

	r.Join(a, "general")
	remaining, left := r.Leave(a, "general")
	if !left || remaining != 0 {
		t.Fatalf("leave: got remaining=%d left=%v", remaining, left)
	}
	if len(r.Rooms()) != 0 {
		t.Fatal("empty room should be deleted")
	}

	// A rejoin after deletion starts a fresh room.
	n, already := r.Join(a, "general")
	if n != 1 || already {
		t.Fatalf("rejoin after delete: got count=%d already=%v", n, already)
	}
}

func TestLeaveNotAMember(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")
	r.Join(a, "general")

	remaining, left := r.Leave(b, "general")
	if left {
		t.Fatal("non-member leave should report left=false")
	}
	if remaining != 1 {
		t.Fatalf("remaining=%d, want 1", remaining)
	}
	if _, left := r.Leave(b, "no-such-room"); left {
		t.Fatal("leave of unknown room should be a no-op")
	}
}

func TestRemoveConnCascades(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")

	r.Join(a, "general")
	r.Join(a, "random")
	r.Join(b, "general")

	departures := r.RemoveConn(a)
	if len(departures) != 2 {
		t.Fatalf("departures=%d, want 2", len(departures))
	}
	for _, d := range departures {
		switch d.Room {
		case "general":
			if d.Remaining != 1 {
				t.Fatalf("general remaining=%d, want 1", d.Remaining)
			}
		case "random":
			if d.Remaining != 0 {
				t.Fatalf("random remaining=%d, want 0", d.Remaining)
			}
		default:
			t.Fatalf("unexpected room %q", d.Room)
		}
	}
	rooms := r.Rooms()
	if len(rooms) != 1 || rooms[0].Name != "general" {
		t.Fatalf("rooms after cascade: %+v", rooms)
	}
	if r.RemoveConn(a) != nil {
		t.Fatal("second RemoveConn should be a no-op")
	}
}

func TestRoomsSortedWithCounts(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")

	r.Join(a, "zebra")
	r.Join(a, "alpha")
	r.Join(b, "alpha")

	rooms := r.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("rooms=%d, want 2", len(rooms))
	}
	if rooms[0].Name != "alpha" || rooms[0].UserCount != 2 {
		t.Fatalf("rooms[0]=%+v", rooms[0])
	}
	if rooms[1].Name != "zebra" || rooms[1].UserCount != 1 {
		t.Fatalf("rooms[1]=%+v", rooms[1])
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	b := newTestClient("u2", "bob")
	c := newTestClient("u3", "carol")

	r.Join(a, "general")
	r.Join(b, "general")
	r.Join(c, "general")

	attempted, delivered := r.Broadcast("general", []byte(`{"type":"message"}`), a)
	if attempted != 2 || delivered != 2 {
		t.Fatalf("attempted=%d delivered=%d, want 2 2", attempted, delivered)
	}
	if got := drain(a); got != nil {
		t.Fatalf("excluded sender received %d frames", len(got))
	}
	if got := drain(b); len(got) != 1 {
		t.Fatalf("bob frames=%d, want 1", len(got))
	}
}

func TestBroadcastContinuesPastFailedMember(t *testing.T) {
	r := NewRoomRegistry()
	a := newTestClient("u1", "alice")
	closed := newTestClient("u2", "bob")
	b := newTestClient("u3", "carol")
	closed.CloseSend()

	r.Join(a, "general")
	r.Join(closed, "general")
	r.Join(b, "general")

	attempted, delivered := r.Broadcast("general", []byte("x"), nil)
	if attempted != 3 {
		t.Fatalf("attempted=%d, want 3", attempted)
	}
	if delivered != 2 {
		t.Fatalf("delivered=%d, want 2", delivered)
	}
}
