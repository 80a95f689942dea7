package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestRateCompliance exercises P13: across a 1-second window, admitted
// calls never exceed sustained+burst.
func TestRateCompliance(t *testing.T) {
	g := New(10, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	admitted := 0
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if err := g.Acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		admitted++
	}

	if admitted > 10+5+2 { // small slack for the loop's own timing jitter
		t.Fatalf("admitted %d calls in 1s, expected close to sustained(10)+burst(5)", admitted)
	}
}

func TestPenalizeThenRelax(t *testing.T) {
	g := New(10, 5)
	if !g.Penalize() {
		t.Fatalf("expected first Penalize to trip")
	}
	if g.Penalize() {
		t.Fatalf("expected second Penalize within cooldown to be a no-op")
	}
	g.Relax() // should be a no-op inside the cooldown window
	if g.limiter.Limit() == g.sustained {
		t.Fatalf("expected limiter to remain reduced during cooldown")
	}
}
