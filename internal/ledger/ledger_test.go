package ledger

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"trading-core/pkg/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	database := &db.Database{DB: raw}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db.NewUserQueries(raw))
}

func TestMetricsCacheInvalidatedOnNewRecord(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	if err := l.RecordTrade(ctx, db.Trade{TradeID: "t1", UserID: "u1", Profit: 10, Outcome: "success"}); err != nil {
		t.Fatalf("record trade: %v", err)
	}

	m1, err := l.GetMetrics(ctx, "u1")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if m1.TotalProfit != 10 || m1.TradeCount != 1 {
		t.Fatalf("unexpected metrics after first trade: %+v", m1)
	}

	if err := l.RecordTrade(ctx, db.Trade{TradeID: "t2", UserID: "u1", Profit: 5, Outcome: "success"}); err != nil {
		t.Fatalf("record second trade: %v", err)
	}

	m2, err := l.GetMetrics(ctx, "u1")
	if err != nil {
		t.Fatalf("get metrics after second trade: %v", err)
	}
	if m2.TotalProfit != 15 || m2.TradeCount != 2 {
		t.Fatalf("expected cache invalidation to reflect second trade, got %+v", m2)
	}
}

// GetMetrics does not return a NotFound error for a user with no trades; it
// returns zeroed metrics.
func TestGetMetricsUnknownUserReturnsZeroedMetrics(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	m, err := l.GetMetrics(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TradeCount != 0 {
		t.Fatalf("expected zero trades for unknown user, got %d", m.TradeCount)
	}
}

func TestLeaderboardAnonymized(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	users := map[string]float64{"u1": 10, "u2": 50, "u3": 20}
	i := 0
	for userID, profit := range users {
		i++
		if err := l.RecordTrade(ctx, db.Trade{
			TradeID: string(rune('a' + i)), UserID: userID, Profit: profit, Outcome: "success",
		}); err != nil {
			t.Fatalf("record trade: %v", err)
		}
	}

	entries, err := l.GetLeaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Profit != 50 || entries[1].Profit != 20 || entries[2].Profit != 10 {
		t.Fatalf("expected descending profit order, got %+v", entries)
	}
}
