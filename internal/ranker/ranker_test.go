package ranker

import (
	"context"
	"testing"

	"trading-core/internal/strategy"
)

func TestFallbackRankOrdersByProfitDescending(t *testing.T) {
	r, err := New("", 0) // empty addr: always uses the fallback heuristic
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	opps := []strategy.Opportunity{
		{UserID: "u1", ExpectedProfit: 50},
		{UserID: "u2", ExpectedProfit: 2_000_000},
		{UserID: "u3", ExpectedProfit: 500_000},
	}

	decisions := r.Rank(context.Background(), opps)
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	if decisions[0].Opportunity.UserID != "u2" || decisions[0].RiskTier != "high" {
		t.Fatalf("expected u2 ranked first as high risk, got %+v", decisions[0])
	}
	if decisions[1].Opportunity.UserID != "u3" || decisions[1].RiskTier != "medium" {
		t.Fatalf("expected u3 ranked second as medium risk, got %+v", decisions[1])
	}
	if decisions[2].Opportunity.UserID != "u1" || decisions[2].RiskTier != "low" {
		t.Fatalf("expected u1 ranked last as low risk, got %+v", decisions[2])
	}
}

func TestRankEmptyInput(t *testing.T) {
	r, err := New("", 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	decisions := r.Rank(context.Background(), nil)
	if len(decisions) != 0 {
		t.Fatalf("expected no decisions for empty input, got %d", len(decisions))
	}
}
