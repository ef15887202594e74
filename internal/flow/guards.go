package flow

import (
	"sync"
	"time"
)

// Guard windows.
const (
	// DuplicateWindow is how long an identical (phone, text) pair is treated
	// as a gateway redelivery and dropped.
	DuplicateWindow = 8 * time.Second
	// BusyNotifyWindow throttles the "still working" notice while a preview
	// job runs for the same customer.
	BusyNotifyWindow = 15 * time.Second
	// guardSweepLimit caps entries retained between sweeps so webhook floods
	// cannot grow the guard maps without bound.
	guardSweepLimit = 4096
)

// DuplicateGuard drops exact redeliveries of a recent inbound message. Chat
// gateways retry webhooks aggressively; the guard keys on the literal message
// text so distinct messages are never suppressed.
type DuplicateGuard struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDuplicateGuard creates a guard with the default window.
func NewDuplicateGuard() *DuplicateGuard {
	return &DuplicateGuard{window: DuplicateWindow, now: time.Now, seen: make(map[string]time.Time)}
}

// WithWindow overrides the duplicate window (tests).
func (g *DuplicateGuard) WithWindow(d time.Duration) *DuplicateGuard {
	g.window = d
	return g
}

// WithNow overrides the clock (tests).
func (g *DuplicateGuard) WithNow(now func() time.Time) *DuplicateGuard {
	g.now = now
	return g
}

// IsDuplicate records the message and reports whether the same phone sent the
// same text inside the window.
func (g *DuplicateGuard) IsDuplicate(phone, text string) bool {
	key := phone + "\x00" + text
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.seen[key]
	g.seen[key] = now
	if len(g.seen) > guardSweepLimit {
		g.sweepLocked(now)
	}
	return ok && now.Sub(last) < g.window
}

// sweepLocked drops expired entries. Caller holds g.mu.
func (g *DuplicateGuard) sweepLocked(now time.Time) {
	for k, t := range g.seen {
		if now.Sub(t) >= g.window {
			delete(g.seen, k)
		}
	}
}

// BusyGuard throttles the preview-in-progress notice so a chatty customer
// gets at most one notice per window while their job runs.
type BusyGuard struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

// NewBusyGuard creates a guard with the default notify window.
func NewBusyGuard() *BusyGuard {
	return &BusyGuard{window: BusyNotifyWindow, now: time.Now, notified: make(map[string]time.Time)}
}

// WithNow overrides the clock (tests).
func (g *BusyGuard) WithNow(now func() time.Time) *BusyGuard {
	g.now = now
	return g
}

// ShouldNotify reports whether the busy notice may be sent to phone now, and
// records the send when it may.
func (g *BusyGuard) ShouldNotify(phone string) bool {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.notified[phone]; ok && now.Sub(last) < g.window {
		return false
	}
	g.notified[phone] = now
	return true
}

// Clear removes the throttle entry once the job for phone finishes.
func (g *BusyGuard) Clear(phone string) {
	g.mu.Lock()
	delete(g.notified, phone)
	g.mu.Unlock()
}
