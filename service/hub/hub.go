package hub

import (
	"sort"

	"github.com/gorilla/websocket"

	"PulseChat/service/ratelimit"
)

// Hub bundles every piece of process-wide mutable chat state behind one
// handle constructed at startup and passed by reference, so tests can run
// several isolated instances in-process.
type Hub struct {
	Rooms    *RoomRegistry
	Presence *PresenceDirectory
	Typing   *TypingAggregator
	Limiter  *ratelimit.Limiter

	gwID      string
	sendQueue int
}

type Conf struct {
	GatewayID string
	SendQueue int // per-connection outbound buffer, default 256
	RateLimit ratelimit.Conf
}

func New(conf Conf) *Hub {
	if conf.SendQueue <= 0 {
		conf.SendQueue = 256
	}
	return &Hub{
		Rooms:     NewRoomRegistry(),
		Presence:  NewPresenceDirectory(),
		Typing:    NewTypingAggregator(),
		Limiter:   ratelimit.New(conf.RateLimit),
		gwID:      conf.GatewayID,
		sendQueue: conf.SendQueue,
	}
}

func (h *Hub) GatewayID() string { return h.gwID }

// Accept wraps an upgraded socket with a stable connection id and the
// configured send queue.
func (h *Hub) Accept(ws *websocket.Conn) *Client {
	return NewClient(ws, h.sendQueue)
}

// OnlineUsernames intersects the room's membership snapshot with the
// presence directory: only members whose identity still backs their
// presence entry are listed.
func (h *Hub) OnlineUsernames(room string) []string {
	members := h.Rooms.Members(room)
	out := make([]string, 0, len(members))
	for _, c := range members {
		_, username, ok := c.Identity()
		if !ok {
			continue
		}
		if h.Presence.Registered(c) {
			out = append(out, username)
		}
	}
	sort.Strings(out)
	return out
}

// Disconnect runs the synchronous cascade for a closing connection:
// presence entry (exact-match), every room membership, and the typing sets
// of those rooms. It must complete before any further event for the
// connection is processed.
func (h *Hub) Disconnect(c *Client) []Departure {
	h.Presence.Unregister(c)
	departures := h.Rooms.RemoveConn(c)
	if _, username, ok := c.Identity(); ok {
		for _, d := range departures {
			h.Typing.RemoveUser(d.Room, username)
		}
	}
	c.CloseSend()
	return departures
}

func (h *Hub) Close() {
	h.Limiter.Close()
}
