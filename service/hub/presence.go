package hub

import "sync"

// PresenceDirectory is the userId -> live connection map. Entries are
// removed synchronously when a connection closes, never lazily.
type PresenceDirectory struct {
	mu     sync.RWMutex
	byUser map[string]*Client
}

func NewPresenceDirectory() *PresenceDirectory {
	return &PresenceDirectory{byUser: make(map[string]*Client)}
}

// Register binds the client's identity. Last join wins: a prior
// registration for the same userId is superseded and returned; the
// superseded connection is neither notified nor closed here.
func (p *PresenceDirectory) Register(c *Client) (superseded *Client) {
	userID, _, ok := c.Identity()
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.byUser[userID]
	if prev == c {
		return nil
	}
	p.byUser[userID] = c
	return prev
}

func (p *PresenceDirectory) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byUser[userID]
	return c, ok
}

// Unregister removes only entries whose value is this exact connection,
// so a stale connection disconnecting late never evicts the newer one.
func (p *PresenceDirectory) Unregister(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, cur := range p.byUser {
		if cur == c {
			delete(p.byUser, userID)
		}
	}
}

func (p *PresenceDirectory) Online(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[userID]
	return ok
}

// Registered reports whether this exact connection currently backs the
// entry for its userId.
func (p *PresenceDirectory) Registered(c *Client) bool {
	userID, _, ok := c.Identity()
	if !ok {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byUser[userID] == c
}
