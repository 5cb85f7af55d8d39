package hub

import (
	"sort"
	"sync"

	"PulseChat/logger"
)

// RoomRegistry tracks which connections sit in which rooms. A room exists
// only while it has members: created lazily on the first join, deleted
// atomically by the leave that empties it.
type RoomRegistry struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]*Client // room -> connID -> client
	connRooms map[string]map[string]struct{}
}

type RoomInfo struct {
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// Departure is one room the connection was removed from during a
// disconnect cascade.
type Departure struct {
	Room      string
	Remaining int
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:     make(map[string]map[string]*Client),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection and reports the member count after the join.
// Re-joining a room the connection is already in is a no-op with
// already=true so the caller skips the double notification.
func (r *RoomRegistry) Join(c *Client, room string) (memberCount int, already bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	if _, ok := members[c.ConnID]; ok {
		return len(members), true
	}
	members[c.ConnID] = c

	set := r.connRooms[c.ConnID]
	if set == nil {
		set = make(map[string]struct{})
		r.connRooms[c.ConnID] = set
	}
	set[room] = struct{}{}

	return len(members), false
}

// Leave removes the connection; the room is deleted when it empties.
// Leaving a room the connection is not in is a no-op (left=false).
func (r *RoomRegistry) Leave(c *Client, room string) (remaining int, left bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c.ConnID, room)
}

func (r *RoomRegistry) leaveLocked(connID, room string) (remaining int, left bool) {
	members, ok := r.rooms[room]
	if !ok {
		return 0, false
	}
	if _, ok := members[connID]; !ok {
		return len(members), false
	}
	delete(members, connID)
	if set := r.connRooms[connID]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.connRooms, connID)
		}
	}
	if len(members) == 0 {
		delete(r.rooms, room)
		return 0, true
	}
	return len(members), true
}

// RemoveConn applies leave semantics for every room the connection is in
// and reports the departures so the caller can notify the survivors.
func (r *RoomRegistry) RemoveConn(c *Client) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connRooms[c.ConnID]
	if !ok {
		return nil
	}
	out := make([]Departure, 0, len(set))
	for room := range set {
		members := r.rooms[room]
		if members == nil {
			continue
		}
		delete(members, c.ConnID)
		if len(members) == 0 {
			delete(r.rooms, room)
			out = append(out, Departure{Room: room, Remaining: 0})
		} else {
			out = append(out, Departure{Room: room, Remaining: len(members)})
		}
	}
	delete(r.connRooms, c.ConnID)
	return out
}

// Members returns a point-in-time snapshot of the room.
func (r *RoomRegistry) Members(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *RoomRegistry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *RoomRegistry) InRoom(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

func (r *RoomRegistry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		out = append(out, RoomInfo{Name: name, UserCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Broadcast serializes once upstream and sends the payload to every member
// of the snapshot except exclude. A failed send on one member never aborts
// delivery to the rest.
func (r *RoomRegistry) Broadcast(room string, payload []byte, exclude *Client) (attempted, delivered int) {
	for _, c := range r.Members(room) {
		if exclude != nil && c.ConnID == exclude.ConnID {
			continue
		}
		attempted++
		if err := c.Enqueue(payload); err != nil {
			logger.Infof("[rooms] broadcast skip conn=%s room=%s err=%v", c.ConnID, room, err)
			continue
		}
		delivered++
	}
	return attempted, delivered
}
