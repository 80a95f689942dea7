package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-core/internal/pricecache"
)

type stubStrategy struct {
	name string
	opps []Opportunity
	err  error
	panic bool
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Scan(ctx context.Context, userID, walletPublicKey string, prices *pricecache.Cache) ([]Opportunity, error) {
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.opps, nil
}

// TestScanIsolatesStrategyErrors exercises P7: a failing or panicking
// strategy must not prevent other strategies from running for the user.
func TestScanIsolatesStrategyErrors(t *testing.T) {
	scanner := NewScanner(pricecache.New(time.Minute))

	scanner.Register(&stubStrategy{name: "failing", err: errors.New("boom")})
	scanner.Register(&stubStrategy{name: "panicking", panic: true})
	scanner.Register(&stubStrategy{name: "good", opps: []Opportunity{{Action: "buy:SOL"}}})

	opps := scanner.Scan(context.Background(), "user-1", "pk-1", nil)
	if len(opps) != 1 {
		t.Fatalf("expected exactly 1 opportunity from the surviving strategy, got %d", len(opps))
	}
	if opps[0].UserID != "user-1" {
		t.Fatalf("expected opportunity tagged with user id, got %q", opps[0].UserID)
	}
	if opps[0].StrategyName != "good" {
		t.Fatalf("expected strategy name 'good', got %q", opps[0].StrategyName)
	}
}

func TestScanRespectsEnabledNames(t *testing.T) {
	scanner := NewScanner(pricecache.New(time.Minute))
	scanner.Register(&stubStrategy{name: "a", opps: []Opportunity{{Action: "a-action"}}})
	scanner.Register(&stubStrategy{name: "b", opps: []Opportunity{{Action: "b-action"}}})

	opps := scanner.Scan(context.Background(), "user-1", "pk-1", []string{"b"})
	if len(opps) != 1 || opps[0].Action != "b-action" {
		t.Fatalf("expected only strategy b's opportunity, got %+v", opps)
	}
}
