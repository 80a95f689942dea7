package strategy

import (
	"context"

	"trading-core/internal/pricecache"
)

// Opportunity is a candidate action produced by a strategy, not yet
// approved or executed. It is transient: created by the Scanner, consumed
// by the Ranker and Trade Queue, never persisted.
type Opportunity struct {
	UserID         string
	StrategyName   string
	Action         string // opaque to the core; interpreted by the Trade Queue's executor
	ExpectedProfit float64
	RiskTier       string // high, medium, low; set by the Ranker, empty until then
	Payload        any    // strategy-specific data carried through to execution
}

// Strategy is the narrow interface every trading strategy implements. Scan
// is given the user's wallet public key (as a base58 string, never the
// private key) and the shared price cache, and returns zero or more
// Opportunities for that user.
type Strategy interface {
	Name() string
	Scan(ctx context.Context, userID, walletPublicKey string, prices *pricecache.Cache) ([]Opportunity, error)
}
