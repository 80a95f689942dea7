package tradequeue

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "modernc.org/sqlite"

	"trading-core/internal/events"
	"trading-core/internal/ranker"
	"trading-core/internal/ratelimit"
	"trading-core/internal/strategy"
	"trading-core/internal/wallet"
	"trading-core/pkg/crypto"
	"trading-core/pkg/db"
	"trading-core/pkg/solrpc"
)

func decisionOpp(userID string, profit float64) strategy.Opportunity {
	return strategy.Opportunity{
		UserID:         userID,
		StrategyName:   "test_strategy",
		Action:         "buy:SOL",
		ExpectedProfit: profit,
	}
}

func newTestQueue(t *testing.T, capacity int, execute Executor) (*Queue, *wallet.Store, *db.UserQueries) {
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

	keys, err := crypto.NewKeyManagerFromSecret("test-secret", filepath.Join(t.TempDir(), "salt"))
	if err != nil {
		t.Fatalf("key manager: %v", err)
	}
	wallets, err := wallet.New(database, keys, t.TempDir())
	if err != nil {
		t.Fatalf("wallet store: %v", err)
	}

	ledger := db.NewUserQueries(raw)
	bus := events.NewBus()
	fake := solrpc.NewFake()
	gate := ratelimit.New(1000, 50)

	q := New(capacity, wallets, gate, fake, ledger, bus, execute, time.Second)
	return q, wallets, ledger
}

func TestQueueRecordsSuccessfulTrade(t *testing.T) {
	ctx := context.Background()
	execute := func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error) {
		return &solana.Transaction{}, nil
	}
	q, wallets, ledger := newTestQueue(t, 10, execute)

	if _, _, err := wallets.Create(ctx, "user-1"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	q.Enqueue(Item{UserID: "user-1", Decision: ranker.Decision{
		Opportunity: decisionOpp("user-1", 100),
		RiskTier:    "low",
	}})
	q.Close()
	wg.Wait()

	trades, err := ledger.GetTradesByUser(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Outcome != "success" {
		t.Fatalf("expected success outcome, got %s", trades[0].Outcome)
	}
}

func TestQueueRecordsFailureWhenWalletMissing(t *testing.T) {
	ctx := context.Background()
	execute := func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error) {
		t.Fatalf("executor should not be invoked when wallet is missing")
		return nil, nil
	}
	q, _, ledger := newTestQueue(t, 10, execute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	q.Enqueue(Item{UserID: "ghost", Decision: ranker.Decision{Opportunity: decisionOpp("ghost", 50)}})
	q.Close()
	wg.Wait()

	trades, err := ledger.GetTradesByUser(ctx, "ghost", 10)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Outcome != "failed" {
		t.Fatalf("expected 1 failed trade, got %+v", trades)
	}
}

// TestQueueRecordsFailureOnRPCOutage exercises submission during an RPC
// outage: SendTransaction fails, the trade is recorded as failed rather
// than left unrecorded, and the queue keeps draining subsequent items.
func TestQueueRecordsFailureOnRPCOutage(t *testing.T) {
	ctx := context.Background()
	execute := func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error) {
		return &solana.Transaction{}, nil
	}
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	database := &db.Database{DB: raw}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	keys, err := crypto.NewKeyManagerFromSecret("test-secret", filepath.Join(t.TempDir(), "salt"))
	if err != nil {
		t.Fatalf("key manager: %v", err)
	}
	wallets, err := wallet.New(database, keys, t.TempDir())
	if err != nil {
		t.Fatalf("wallet store: %v", err)
	}
	if _, _, err := wallets.Create(ctx, "user-1"); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	ledger := db.NewUserQueries(raw)
	bus := events.NewBus()
	fake := solrpc.NewFake()
	fake.FailNext = true // simulate the RPC node being unreachable for the first submission
	gate := ratelimit.New(1000, 50)
	q := New(10, wallets, gate, fake, ledger, bus, execute, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	q.Enqueue(Item{UserID: "user-1", Decision: ranker.Decision{Opportunity: decisionOpp("user-1", 10)}})
	q.Enqueue(Item{UserID: "user-1", Decision: ranker.Decision{Opportunity: decisionOpp("user-1", 20)}})
	q.Close()
	wg.Wait()

	trades, err := ledger.GetTradesByUser(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected both trades recorded despite outage, got %d", len(trades))
	}
	if trades[0].Outcome != "success" || trades[1].Outcome != "failed" {
		t.Fatalf("expected first trade to fail submission and second to recover, got %+v", trades)
	}
}

// TestQueueStrictFIFOOrdering exercises P9: trades enqueued in order are
// submitted (and thus recorded) in that same order regardless of user.
func TestQueueStrictFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	var order []string
	var mu sync.Mutex
	execute := func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error) {
		mu.Lock()
		order = append(order, decision.Opportunity.UserID)
		mu.Unlock()
		return &solana.Transaction{}, nil
	}
	q, wallets, _ := newTestQueue(t, 100, execute)

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		if _, _, err := wallets.Create(ctx, u); err != nil {
			t.Fatalf("create wallet %s: %v", u, err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	for _, u := range users {
		q.Enqueue(Item{UserID: u, Decision: ranker.Decision{Opportunity: decisionOpp(u, 1)}})
	}
	q.Close()
	wg.Wait()

	if len(order) != len(users) {
		t.Fatalf("expected %d processed, got %d", len(users), len(order))
	}
	for i, u := range users {
		if order[i] != u {
			t.Fatalf("expected strict FIFO order %v, got %v", users, order)
		}
	}
}
