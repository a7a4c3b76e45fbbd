package usecases

import (
	"sync"
	"time"
)

// guardSweepThreshold caps how many armed windows accumulate before a sweep.
const guardSweepThreshold = 4096

// ClaimGuard suppresses duplicate in-flight claim attempts per player and
// cell: a second attempt while one is outstanding, or inside the debounce
// window after one finished, is rejected without touching the store. It
// smooths double taps and GPS jitter at cell boundaries; at-most-once
// semantics under concurrent devices rest on the ownership store's
// conditional write, never on this guard.
type ClaimGuard struct {
	mu       sync.Mutex
	window   time.Duration
	inflight map[string]bool
	lastSeen map[string]time.Time
}

// NewClaimGuard creates a guard with the given debounce window (10 s when
// zero or negative).
func NewClaimGuard(window time.Duration) *ClaimGuard {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &ClaimGuard{
		window:   window,
		inflight: make(map[string]bool),
		lastSeen: make(map[string]time.Time),
	}
}

// Begin registers an attempt. It reports false when the attempt must be
// suppressed.
func (g *ClaimGuard) Begin(playerID, cellID string, now time.Time) bool {
	key := playerID + "|" + cellID

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inflight[key] {
		return false
	}
	if last, ok := g.lastSeen[key]; ok && now.Sub(last) < g.window {
		return false
	}

	g.inflight[key] = true
	g.lastSeen[key] = now
	if len(g.lastSeen) > guardSweepThreshold {
		g.sweep(now)
	}
	return true
}

// End closes an attempt admitted by Begin and arms the debounce window from
// its completion time.
func (g *ClaimGuard) End(playerID, cellID string, now time.Time) {
	key := playerID + "|" + cellID

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inflight, key)
	g.lastSeen[key] = now
}

// sweep drops expired windows. Caller holds the lock.
func (g *ClaimGuard) sweep(now time.Time) {
	for key, at := range g.lastSeen {
		if now.Sub(at) >= g.window && !g.inflight[key] {
			delete(g.lastSeen, key)
		}
	}
}
