// Package balance implements the Balance Oracle (C2): cached, rate-gated
// Solana account balance reads with last-known-good fallback on RPC
// failure.
package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"trading-core/internal/events"
	"trading-core/internal/ratelimit"
	"trading-core/pkg/solrpc"
)

// Snapshot is the in-memory Balance Snapshot retained per user across
// cycles so threshold crossings can be detected.
type Snapshot struct {
	Balance         uint64
	PreviousBalance uint64
	RefreshedAt     time.Time
	Stale           bool // true if the last refresh attempt failed and this value is carried over
}

// IsActive reports whether balance meets or exceeds the minimum trading
// balance.
func (s Snapshot) IsActive(minTradingBalance uint64) bool {
	return s.Balance >= minTradingBalance
}

// Oracle is the Balance Oracle. One instance is shared across every user;
// it has no per-user goroutines of its own (the Scheduler drives refreshes).
type Oracle struct {
	rpc       solrpc.Client
	gate      *ratelimit.Gate
	bus       *events.Bus
	ttl       time.Duration
	batchSize int

	mu   sync.RWMutex
	data map[string]Snapshot // userID -> snapshot
}

// New builds an Oracle. ttl bounds how long a cached reading is served
// without a fresh RPC round trip; batchSize bounds how many accounts are
// requested per multi-account RPC call. bus may be nil; when set, an RPC
// failure that trips the gate's backoff publishes EventRateLimitBackoff so
// the Scheduler can widen its cycle interval.
func New(rpc solrpc.Client, gate *ratelimit.Gate, bus *events.Bus, ttl time.Duration, batchSize int) *Oracle {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Oracle{
		rpc:       rpc,
		gate:      gate,
		bus:       bus,
		ttl:       ttl,
		batchSize: batchSize,
		data:      make(map[string]Snapshot),
	}
}

func (o *Oracle) reportRPCFailure() {
	if o.gate.Penalize() && o.bus != nil {
		o.bus.Publish(events.EventRateLimitBackoff, nil)
	}
}

// GetBalance returns the cached balance for userID if fresh, otherwise
// refreshes it via a single-account RPC call. RPC failure falls back to the
// last cached value (zero if none exists yet); the oracle never returns an
// error across this boundary.
func (o *Oracle) GetBalance(ctx context.Context, userID string, account solana.PublicKey) uint64 {
	if snap, fresh := o.lookup(userID); fresh {
		return snap.Balance
	}

	if err := o.gate.Acquire(ctx); err != nil {
		return o.lastKnown(userID)
	}

	lamports, err := o.rpc.GetBalance(ctx, account)
	if err != nil {
		log.Printf("balance refresh failed for user=%s: %v", userID, err)
		o.reportRPCFailure()
		return o.lastKnownMarkStale(userID)
	}

	o.gate.Relax()
	o.store(userID, lamports)
	return lamports
}

// BatchGetBalances refreshes every given user's balance via chunked
// multi-account RPC calls (o.batchSize accounts per request) and returns
// the resulting snapshots. A chunk failure leaves those users' entries at
// their last-known-good value; it does not abort the remaining chunks.
func (o *Oracle) BatchGetBalances(ctx context.Context, accounts map[string]solana.PublicKey) map[string]Snapshot {
	userIDs := make([]string, 0, len(accounts))
	for userID := range accounts {
		userIDs = append(userIDs, userID)
	}

	for start := 0; start < len(userIDs); start += o.batchSize {
		end := start + o.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := userIDs[start:end]
		o.refreshChunk(ctx, chunk, accounts)
	}

	result := make(map[string]Snapshot, len(userIDs))
	o.mu.RLock()
	for _, userID := range userIDs {
		result[userID] = o.data[userID]
	}
	o.mu.RUnlock()
	return result
}

func (o *Oracle) refreshChunk(ctx context.Context, userIDs []string, accounts map[string]solana.PublicKey) {
	if err := o.gate.Acquire(ctx); err != nil {
		return
	}

	pubkeys := make([]solana.PublicKey, len(userIDs))
	for i, userID := range userIDs {
		pubkeys[i] = accounts[userID]
	}

	balances, err := o.rpc.GetBalances(ctx, pubkeys)
	if err != nil {
		log.Printf("batch balance refresh failed for %d users: %v", len(userIDs), err)
		o.reportRPCFailure()
		for _, userID := range userIDs {
			o.lastKnownMarkStale(userID)
		}
		return
	}

	o.gate.Relax()
	for i, userID := range userIDs {
		lamports := balances[pubkeys[i]]
		o.store(userID, lamports)
	}
}

func (o *Oracle) lookup(userID string) (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap, ok := o.data[userID]
	if !ok || snap.Stale {
		return snap, false
	}
	return snap, time.Since(snap.RefreshedAt) <= o.ttl
}

func (o *Oracle) lastKnown(userID string) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.data[userID].Balance
}

func (o *Oracle) lastKnownMarkStale(userID string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.data[userID]
	snap.Stale = true
	o.data[userID] = snap
	return snap.Balance
}

func (o *Oracle) store(userID string, lamports uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.data[userID]
	o.data[userID] = Snapshot{
		Balance:         lamports,
		PreviousBalance: prev.Balance,
		RefreshedAt:     time.Now(),
		Stale:           false,
	}
}

// Get returns the current in-memory snapshot for a user without triggering
// a refresh, for scheduler threshold-crossing comparisons.
func (o *Oracle) Get(userID string) (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap, ok := o.data[userID]
	return snap, ok
}

// Seed primes a user's snapshot from a persisted balance_snapshots row,
// so a restart has a value before the first live read completes.
func (o *Oracle) Seed(userID string, balance, previous uint64, refreshedAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.data[userID]; exists {
		return
	}
	o.data[userID] = Snapshot{Balance: balance, PreviousBalance: previous, RefreshedAt: refreshedAt, Stale: true}
}
