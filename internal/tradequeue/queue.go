// Package tradequeue implements the Trade Queue (C6): a single-consumer
// FIFO of per-user trade attempts, serialized across every user so at most
// one submission RPC is ever in flight.
package tradequeue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"trading-core/internal/events"
	"trading-core/internal/ranker"
	"trading-core/internal/ratelimit"
	"trading-core/internal/wallet"
	"trading-core/pkg/db"
	"trading-core/pkg/solrpc"
)

// Item is one queued trade attempt: a ranked Opportunity addressed to a
// specific user.
type Item struct {
	UserID   string
	Decision ranker.Decision
}

// Executor builds and signs the transaction for a decision. It is the only
// seam where Opportunity.Payload is interpreted; the queue itself treats
// the action as opaque. Returning a nil transaction with no error tells
// the queue to record the trade as skipped without submitting anything.
type Executor func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error)

// Queue is the Trade Queue. One consumer goroutine drains it; Enqueue can
// be called concurrently from the Scheduler.
type Queue struct {
	ch             chan Item
	wallets        *wallet.Store
	gate           *ratelimit.Gate
	rpc            solrpc.Client
	ledger         *db.UserQueries
	bus            *events.Bus
	execute        Executor
	confirmTimeout time.Duration
}

// New builds a Queue with the given channel capacity.
func New(capacity int, wallets *wallet.Store, gate *ratelimit.Gate, rpc solrpc.Client, ledger *db.UserQueries, bus *events.Bus, execute Executor, confirmTimeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	return &Queue{
		ch:             make(chan Item, capacity),
		wallets:        wallets,
		gate:           gate,
		rpc:            rpc,
		ledger:         ledger,
		bus:            bus,
		execute:        execute,
		confirmTimeout: confirmTimeout,
	}
}

// Enqueue appends an item. Ordering contract: items enqueued in order
// t1 < t2 are submitted in that order regardless of which users they
// belong to (P9); the channel's FIFO semantics provide this directly.
func (q *Queue) Enqueue(item Item) {
	q.ch <- item
}

// Close signals no more items will be enqueued; Run drains remaining items
// then returns.
func (q *Queue) Close() {
	close(q.ch)
}

// Run is the single consumer loop. It processes at most one item at a
// time; no two trades are ever in flight concurrently.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			q.process(ctx, item)
		}
	}
}

func (q *Queue) process(ctx context.Context, item Item) {
	tradeID := uuid.NewString()

	handle, err := q.wallets.Get(ctx, item.UserID)
	if err != nil || handle == nil {
		q.recordFailure(ctx, tradeID, item, fmt.Sprintf("wallet unavailable: %v", err))
		return
	}

	if err := q.gate.Acquire(ctx); err != nil {
		q.recordFailure(ctx, tradeID, item, fmt.Sprintf("rate gate: %v", err))
		return
	}

	tx, err := q.execute(ctx, handle, item.Decision)
	if err != nil {
		q.recordFailure(ctx, tradeID, item, fmt.Sprintf("build transaction: %v", err))
		return
	}
	if tx == nil {
		q.recordOutcome(ctx, tradeID, item, "skipped", "", "no transaction produced")
		return
	}

	sig, err := q.rpc.SendTransaction(ctx, tx)
	if err != nil {
		q.recordFailure(ctx, tradeID, item, fmt.Sprintf("submit: %v", err))
		return
	}

	confirmCtx, cancel := context.WithTimeout(ctx, q.confirmTimeout)
	err = q.rpc.ConfirmTransaction(confirmCtx, sig)
	cancel()
	if err != nil {
		q.recordFailure(ctx, tradeID, item, fmt.Sprintf("confirm: %v", err))
		return
	}

	sigStr := sig.String()
	q.recordOutcome(ctx, tradeID, item, "success", sigStr, "")
}

func (q *Queue) recordFailure(ctx context.Context, tradeID string, item Item, reason string) {
	log.Printf("trade failed: user=%s trade=%s reason=%s", item.UserID, tradeID, reason)
	q.recordOutcome(ctx, tradeID, item, "failed", "", reason)
	q.bus.Publish(events.EventTradeFailed, map[string]any{
		"user_id":  item.UserID,
		"trade_id": tradeID,
		"reason":   reason,
	})
}

func (q *Queue) recordOutcome(ctx context.Context, tradeID string, item Item, outcome, signature, details string) {
	var sigPtr *string
	if signature != "" {
		sigPtr = &signature
	}
	trade := db.Trade{
		TradeID:      tradeID,
		UserID:       item.UserID,
		StrategyName: item.Decision.Opportunity.StrategyName,
		Action:       item.Decision.Opportunity.Action,
		Amount:       0,
		Profit:       item.Decision.Opportunity.ExpectedProfit,
		TxSignature:  sigPtr,
		Outcome:      outcome,
		Details:      details,
	}
	if err := q.ledger.InsertTrade(ctx, trade); err != nil {
		log.Printf("failed to record trade: user=%s trade=%s err=%v", item.UserID, tradeID, err)
	}

	if outcome == "success" {
		q.bus.Publish(events.EventTradeSucceeded, map[string]any{
			"user_id":   item.UserID,
			"trade_id":  tradeID,
			"signature": signature,
		})
	}
}
