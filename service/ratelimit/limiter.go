package ratelimit

import (
	"sync"
	"time"
)

// Conf mirrors the knobs a deployment tunes. Clock is injectable for tests.
type Conf struct {
	Window     time.Duration // window length, default 1m
	Cap        int           // events allowed per window, default 100
	SweepEvery time.Duration // idle-entry cleanup period, default 5m
	Clock      func() time.Time
}

func (c *Conf) norm() {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cap <= 0 {
		c.Cap = 100
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 5 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a sliding-window counter per identity. All read-then-write on
// a key happens under one mutex, so the sweeper can never race an active
// Check into deleting a live entry.
type Limiter struct {
	mu      sync.Mutex
	conf    Conf
	entries map[string]*window

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(conf Conf) *Limiter {
	conf.norm()
	l := &Limiter{
		conf:    conf,
		entries: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go l.sweeper()
	return l
}

// Check counts one event against the identity's window. An expired window
// rolls forward by exactly one window length from now, not from the old
// boundary, so idle periods don't compound. Exceeding the cap does not
// reset the window.
func (l *Limiter) Check(identity string) Result {
	now := l.conf.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[identity]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(l.conf.Window)}
		l.entries[identity] = w
		return Result{Allowed: true, Remaining: l.conf.Cap - 1, ResetAt: w.resetAt}
	}
	if w.count >= l.conf.Cap {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Result{Allowed: true, Remaining: l.conf.Cap - w.count, ResetAt: w.resetAt}
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) sweeper() {
	t := time.NewTicker(l.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			l.sweepOnce()
		}
	}
}

// sweepOnce removes entries whose window elapsed with no further traffic,
// bounding memory on a long-lived process.
func (l *Limiter) sweepOnce() {
	now := l.conf.Clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, w := range l.entries {
		if now.After(w.resetAt) {
			delete(l.entries, id)
		}
	}
}

// Len is for tests and stats.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
