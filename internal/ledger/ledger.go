// Package ledger implements the Performance Ledger (C7): durable,
// append-only Trade Records with per-user cached metrics invalidated on
// every new record.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"

	"trading-core/pkg/db"
)

// Ledger wraps the durable trade-record store with a per-user metrics
// cache so repeated getMetrics calls within a cycle don't re-scan the
// trades table.
type Ledger struct {
	queries *db.UserQueries

	mu    sync.RWMutex
	cache map[string]*db.PerformanceMetrics

	writes uint64 // total recorded trades, for operator logging
}

// New builds a Ledger over the given query layer.
func New(queries *db.UserQueries) *Ledger {
	return &Ledger{
		queries: queries,
		cache:   make(map[string]*db.PerformanceMetrics),
	}
}

// RecordTrade appends a Trade Record durably and invalidates the user's
// cached metrics so the next getMetrics call recomputes from storage.
func (l *Ledger) RecordTrade(ctx context.Context, trade db.Trade) error {
	if err := l.queries.InsertTrade(ctx, trade); err != nil {
		return err
	}
	atomic.AddUint64(&l.writes, 1)

	l.mu.Lock()
	delete(l.cache, trade.UserID)
	l.mu.Unlock()
	return nil
}

// GetMetrics returns the cached aggregate for userID if present, otherwise
// computes and caches it. The cache is invalidated by RecordTrade, never
// by a timer, so it can never serve a value stale with respect to a known
// write.
func (l *Ledger) GetMetrics(ctx context.Context, userID string) (*db.PerformanceMetrics, error) {
	l.mu.RLock()
	cached, ok := l.cache[userID]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	m, err := l.queries.GetMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[userID] = m
	l.mu.Unlock()
	return m, nil
}

// GetLeaderboard returns the anonymized top-N leaderboard directly from
// storage; leaderboard reads span every user so they are not worth
// per-user cache invalidation bookkeeping.
func (l *Ledger) GetLeaderboard(ctx context.Context, limit int) ([]db.LeaderboardEntry, error) {
	return l.queries.GetLeaderboard(ctx, limit)
}

// TotalWrites returns the number of trade records appended since process
// start, for operator logging.
func (l *Ledger) TotalWrites() uint64 {
	return atomic.LoadUint64(&l.writes)
}
