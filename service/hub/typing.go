package hub

import (
	"sort"
	"sync"
)

// TypingAggregator keeps the per-room set of usernames currently typing.
// Membership is toggled by explicit events; the core never time-decays it.
type TypingAggregator struct {
	mu     sync.Mutex
	byRoom map[string]map[string]struct{}
}

func NewTypingAggregator() *TypingAggregator {
	return &TypingAggregator{byRoom: make(map[string]map[string]struct{})}
}

// Set toggles the username and returns the full current list for the room.
func (t *TypingAggregator) Set(room, username string, typing bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.byRoom[room]
	if typing {
		if set == nil {
			set = make(map[string]struct{})
			t.byRoom[room] = set
		}
		set[username] = struct{}{}
	} else if set != nil {
		delete(set, username)
		if len(set) == 0 {
			delete(t.byRoom, room)
		}
	}
	return t.listLocked(room)
}

func (t *TypingAggregator) List(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listLocked(room)
}

// RemoveUser drops the username from the room set, for the leave and
// disconnect paths.
func (t *TypingAggregator) RemoveUser(room, username string) []string {
	return t.Set(room, username, false)
}

func (t *TypingAggregator) listLocked(room string) []string {
	set := t.byRoom[room]
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
