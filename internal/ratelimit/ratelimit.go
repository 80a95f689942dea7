// Package ratelimit implements the shared RPC gate (C9): a token-bucket
// shared by the Balance Oracle and the Trade Queue, with a self-adjusting
// effective rate when the upstream RPC endpoint itself starts rejecting
// calls as rate-limited.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate is the RPC-call admission control shared across the core.
type Gate struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	sustained    rate.Limit
	burst        int
	backoffUntil time.Time
	backoffRate  rate.Limit
}

// New builds a Gate with the given sustained rate (calls/sec) and burst
// size.
func New(sustained float64, burst int) *Gate {
	return &Gate{
		limiter:   rate.NewLimiter(rate.Limit(sustained), burst),
		sustained: rate.Limit(sustained),
		burst:     burst,
	}
}

// Acquire blocks (respecting ctx) until a token is available.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Penalize reduces the gate's effective rate for a cooldown period after
// the underlying RPC client reports a rate-limit response despite the
// bucket having tokens (the provider's own limit is stricter than ours).
// Returns true the first time it trips within a cooldown window, so the
// caller can emit a backoff signal exactly once per episode.
func (g *Gate) Penalize() (tripped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Before(g.backoffUntil) {
		return false
	}

	reduced := g.sustained / 2
	if reduced < 1 {
		reduced = 1
	}
	g.backoffRate = reduced
	g.backoffUntil = now.Add(30 * time.Second)
	g.limiter.SetLimit(reduced)
	return true
}

// Relax restores the gate to its configured sustained rate once the
// cooldown window has elapsed. Safe to call every cycle; it is a no-op
// until the cooldown expires.
func (g *Gate) Relax() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Now().Before(g.backoffUntil) {
		return
	}
	if g.limiter.Limit() != g.sustained {
		g.limiter.SetLimit(g.sustained)
	}
}
