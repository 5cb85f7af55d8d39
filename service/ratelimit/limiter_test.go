package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestLimiter(window time.Duration, cap int) (*Limiter, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(Conf{
		Window:     window,
		Cap:        cap,
		SweepEvery: time.Hour, // keep the background sweeper out of the way
		Clock:      clk.Now,
	})
	return l, clk
}

func TestCheckEnforcesCap(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 5)
	defer l.Close()

	for i := 0; i < 5; i++ {
		res := l.Check("alice")
		if !res.Allowed {
			t.Fatalf("event %d should pass", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Fatalf("event %d remaining=%d, want %d", i+1, res.Remaining, 5-(i+1))
		}
	}
	res := l.Check("alice")
	if res.Allowed {
		t.Fatal("sixth event inside the window should be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("rejected remaining=%d, want 0", res.Remaining)
	}
}

func TestWindowRollsForwardFromNow(t *testing.T) {
	l, clk := newTestLimiter(time.Minute, 5)
	defer l.Close()

	first := l.Check("alice")
	for i := 0; i < 5; i++ {
		l.Check("alice")
	}
	if l.Check("alice").Allowed {
		t.Fatal("should be limited")
	}

	// Cross the boundary: the fresh window anchors at the new event, not
	// at the old boundary.
	clk.Advance(90 * time.Second)
	res := l.Check("alice")
	if !res.Allowed {
		t.Fatal("first event of fresh window should pass")
	}
	if res.Remaining != 4 {
		t.Fatalf("fresh window remaining=%d, want 4", res.Remaining)
	}
	wantReset := clk.Now().Add(time.Minute)
	if !res.ResetAt.Equal(wantReset) {
		t.Fatalf("resetAt=%v, want %v", res.ResetAt, wantReset)
	}
	if res.ResetAt.Equal(first.ResetAt.Add(time.Minute)) {
		t.Fatal("window must not anchor at the stale boundary")
	}
}

func TestRejectionDoesNotExtendWindow(t *testing.T) {
	l, clk := newTestLimiter(time.Minute, 2)
	defer l.Close()

	l.Check("alice")
	l.Check("alice")
	boundary := l.Check("alice").ResetAt // rejected

	clk.Advance(30 * time.Second)
	res := l.Check("alice")
	if res.Allowed {
		t.Fatal("still inside the window")
	}
	if !res.ResetAt.Equal(boundary) {
		t.Fatal("rejection moved the window boundary")
	}

	clk.Advance(31 * time.Second)
	if !l.Check("alice").Allowed {
		t.Fatal("window elapsed, event should pass")
	}
}

func TestIdentitiesIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 2)
	defer l.Close()

	l.Check("alice")
	l.Check("alice")
	if l.Check("alice").Allowed {
		t.Fatal("alice should be limited")
	}
	if !l.Check("bob").Allowed {
		t.Fatal("bob must not inherit alice's count")
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	l, clk := newTestLimiter(time.Minute, 5)
	defer l.Close()

	l.Check("alice")
	l.Check("bob")
	if l.Len() != 2 {
		t.Fatalf("entries=%d, want 2", l.Len())
	}

	clk.Advance(2 * time.Minute)
	l.Check("carol") // keeps one live entry around
	l.sweepOnce()

	if l.Len() != 1 {
		t.Fatalf("entries after sweep=%d, want 1", l.Len())
	}
	// A swept identity starts over cleanly.
	if got := l.Check("alice").Remaining; got != 4 {
		t.Fatalf("remaining after sweep=%d, want 4", got)
	}
}
