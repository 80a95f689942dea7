package cache

import (
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := NewShardedPriceCache()
	c.Set("SOL", 150.25)

	price, ok := c.Get("SOL")
	if !ok || price != 150.25 {
		t.Fatalf("expected 150.25, ok=true, got %v, ok=%v", price, ok)
	}
}

func TestGetWithAgeReportsFreshness(t *testing.T) {
	c := NewShardedPriceCache()
	c.Set("SOL", 150.25)

	price, age, ok := c.GetWithAge("SOL")
	if !ok || price != 150.25 {
		t.Fatalf("unexpected lookup result: %v %v", price, ok)
	}
	if age < 0 || age > time.Second {
		t.Fatalf("expected near-zero age just after Set, got %v", age)
	}

	_, _, ok = c.GetWithAge("USDC")
	if ok {
		t.Fatalf("expected miss for unset symbol")
	}
}

func TestCleanupRemovesExpiredEntriesOnly(t *testing.T) {
	c := NewShardedPriceCache()
	c.Set("OLD", 1)
	time.Sleep(20 * time.Millisecond)
	c.Set("NEW", 2)

	removed := c.Cleanup(10 * time.Millisecond)
	if removed != 1 {
		t.Fatalf("expected 1 entry removed, got %d", removed)
	}
	if _, ok := c.Get("OLD"); ok {
		t.Fatalf("expected OLD to be evicted")
	}
	if _, ok := c.Get("NEW"); !ok {
		t.Fatalf("expected NEW to survive cleanup")
	}
}

func TestLenAcrossShards(t *testing.T) {
	c := NewShardedPriceCache()
	symbols := []string{"SOL", "USDC", "BONK", "JUP", "RAY"}
	for _, s := range symbols {
		c.Set(s, 1.0)
	}
	if got := c.Len(); got != len(symbols) {
		t.Fatalf("expected %d items, got %d", len(symbols), got)
	}
}
