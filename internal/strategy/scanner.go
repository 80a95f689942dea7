package strategy

import (
	"context"
	"fmt"
	"log"
	"sync"

	"trading-core/internal/pricecache"
)

// Scanner is the Strategy Scanner (C4): for a given user, it invokes every
// enabled strategy's Scan with the shared price cache and flattens the
// results. A panic or error from one strategy is caught and logged with
// user and strategy context; it never prevents the remaining strategies
// from running for that user.
type Scanner struct {
	mu         sync.RWMutex
	strategies map[string]Strategy // name -> strategy
	prices     *pricecache.Cache
}

// NewScanner builds a Scanner backed by the given shared price cache.
func NewScanner(prices *pricecache.Cache) *Scanner {
	return &Scanner{
		strategies: make(map[string]Strategy),
		prices:     prices,
	}
}

// Register adds a strategy, keyed by its Name().
func (s *Scanner) Register(strat Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[strat.Name()] = strat
}

// Scan invokes every strategy named in enabledNames (or every registered
// strategy if enabledNames is nil) for userID and returns the flattened,
// user-tagged Opportunities. Opportunities from each strategy always carry
// UserID even if the strategy forgot to set it.
func (s *Scanner) Scan(ctx context.Context, userID, walletPublicKey string, enabledNames []string) []Opportunity {
	s.mu.RLock()
	targets := s.resolveTargets(enabledNames)
	s.mu.RUnlock()

	var out []Opportunity
	for _, strat := range targets {
		opps, err := s.runOne(ctx, strat, userID, walletPublicKey)
		if err != nil {
			log.Printf("strategy scan failed: user=%s strategy=%s err=%v", userID, strat.Name(), err)
			continue
		}
		for i := range opps {
			opps[i].UserID = userID
			if opps[i].StrategyName == "" {
				opps[i].StrategyName = strat.Name()
			}
		}
		out = append(out, opps...)
	}
	return out
}

func (s *Scanner) resolveTargets(enabledNames []string) []Strategy {
	if enabledNames == nil {
		targets := make([]Strategy, 0, len(s.strategies))
		for _, strat := range s.strategies {
			targets = append(targets, strat)
		}
		return targets
	}
	targets := make([]Strategy, 0, len(enabledNames))
	for _, name := range enabledNames {
		if strat, ok := s.strategies[name]; ok {
			targets = append(targets, strat)
		}
	}
	return targets
}

// runOne isolates both returned errors and panics from a single strategy's
// Scan so one misbehaving strategy cannot take down the scan cycle for a
// user or for any other strategy.
func (s *Scanner) runOne(ctx context.Context, strat Strategy, userID, walletPublicKey string) (opps []Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return strat.Scan(ctx, userID, walletPublicKey, s.prices)
}
