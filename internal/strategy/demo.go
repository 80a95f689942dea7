package strategy

import (
	"context"
	"sync"

	"trading-core/internal/pricecache"
)

// MomentumDemo is a minimal illustrative strategy: it checks a single
// token's price against a remembered per-user baseline and proposes a buy
// once the price has moved up by at least threshold since the user's last
// scan. It exists to exercise the Scanner's fan-out and the Opportunity
// pipeline end to end; it is not a production trading strategy, and its
// feed is caller-supplied rather than wired to any real market data source.
type MomentumDemo struct {
	token       string
	threshold   float64
	tradeAmount uint64
	feed        pricecache.Loader

	mu        sync.Mutex
	lastPrice map[string]float64 // userID -> last observed price
}

// NewMomentumDemo builds an illustrative momentum strategy watching token,
// proposing a buy of tradeAmount lamports whenever price has risen by at
// least threshold (fractional, e.g. 0.01 for 1%) since the user's previous
// scan. feed supplies the current price for token on a cache miss.
func NewMomentumDemo(token string, threshold float64, tradeAmount uint64, feed pricecache.Loader) *MomentumDemo {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &MomentumDemo{
		token:       token,
		threshold:   threshold,
		tradeAmount: tradeAmount,
		feed:        feed,
		lastPrice:   make(map[string]float64),
	}
}

func (m *MomentumDemo) Name() string { return "momentum_demo_" + m.token }

// Scan implements Strategy.
func (m *MomentumDemo) Scan(ctx context.Context, userID, walletPublicKey string, prices *pricecache.Cache) ([]Opportunity, error) {
	price, err := prices.Get(ctx, m.token, m.feed)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev, seen := m.lastPrice[userID]
	m.lastPrice[userID] = price
	m.mu.Unlock()
	if !seen || prev <= 0 {
		return nil, nil
	}

	change := (price - prev) / prev
	if change < m.threshold {
		return nil, nil
	}

	return []Opportunity{{
		UserID:         userID,
		StrategyName:   m.Name(),
		Action:         "buy:" + m.token,
		ExpectedProfit: change * float64(m.tradeAmount),
		Payload:        map[string]any{"token": m.token, "amount_lamports": m.tradeAmount},
	}}, nil
}
