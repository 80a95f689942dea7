// Package scheduler implements the User Scheduler (C8), the control core:
// it drives one scanCycle per configured interval, staggering large user
// populations, batching balance refreshes, detecting activation/
// deactivation threshold crossings, and feeding the strategy/ranker/trade
// pipeline for every active user.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"trading-core/internal/balance"
	"trading-core/internal/events"
	"trading-core/internal/ranker"
	"trading-core/internal/strategy"
	"trading-core/internal/tradequeue"
	"trading-core/internal/wallet"
)

// State is the scheduler's overall lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Config bundles the tunables described in spec.md §4.8.
type Config struct {
	BaseInterval          time.Duration
	MinTradingBalance     uint64
	StaggerThresholdUsers int
	StaggerWindow         time.Duration
	EmptyScanThreshold    int
	EmptyScanExtraSleep   time.Duration
	BackoffFactor         float64 // e.g. 1.5 for +50%
}

// WalletLister is the subset of the wallet store the scheduler needs.
type WalletLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, userID string) (*wallet.Handle, error)
}

// Scheduler is the User Scheduler (C8).
type Scheduler struct {
	cfg         Config
	wallets     WalletLister
	balances    *balance.Oracle
	scanner     *strategy.Scanner
	rank        *ranker.Ranker
	queue       *tradequeue.Queue
	bus         *events.Bus
	preferences PreferenceSource

	mu          sync.Mutex
	state       State
	interval    time.Duration
	emptyStreak int
	rateLimited bool
}

// PreferenceSource resolves which strategies are enabled for a user.
// Returning nil means "all registered strategies."
type PreferenceSource interface {
	EnabledStrategies(ctx context.Context, userID string) []string
}

// New builds a Scheduler. Call Run to start the cycle loop.
func New(cfg Config, wallets WalletLister, balances *balance.Oracle, scanner *strategy.Scanner, rank *ranker.Ranker, queue *tradequeue.Queue, bus *events.Bus, preferences PreferenceSource) *Scheduler {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 5 * time.Minute
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 1.5
	}
	return &Scheduler{
		cfg:         cfg,
		wallets:     wallets,
		balances:    balances,
		scanner:     scanner,
		rank:        rank,
		queue:       queue,
		bus:         bus,
		preferences: preferences,
		state:       StateStopped,
		interval:    cfg.BaseInterval,
	}
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run is the scheduler loop: stopped → running → draining → stopped. It
// blocks until ctx is canceled, then lets any in-flight cycle finish
// before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	if s.bus != nil {
		backoffCh, unsub := s.bus.Subscribe(events.EventRateLimitBackoff, 4)
		defer unsub()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-backoffCh:
					if !ok {
						return
					}
					s.NotifyRateLimited()
				}
			}
		}()
	}

	for {
		cycleCtx, cancel := context.WithCancel(ctx)
		s.runCycle(cycleCtx)
		cancel()

		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.state = StateDraining
			s.mu.Unlock()
			// The in-flight cycle above has already finished; nothing left
			// to drain but the trade queue, which callers close separately.
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			return
		case <-time.After(s.currentInterval()):
		}
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// runCycle performs exactly one scanCycle as described in spec.md §4.8.
func (s *Scheduler) runCycle(ctx context.Context) {
	userIDs, err := s.wallets.ListUserIDs(ctx)
	if err != nil {
		log.Printf("scheduler: list user ids failed: %v", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	order := s.stagger(ctx, userIDs)

	accounts := make(map[string]solana.PublicKey, len(userIDs))
	handles := make(map[string]*wallet.Handle, len(userIDs))
	for _, userID := range userIDs {
		handle, err := s.wallets.Get(ctx, userID)
		if err != nil || handle == nil {
			continue
		}
		handles[userID] = handle
		accounts[userID] = handle.PublicKey()
	}

	snapshots := s.balances.BatchGetBalances(ctx, accounts)

	producedAny := false
	for _, userID := range order {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.processUser(ctx, userID, handles[userID], snapshots[userID]) {
			producedAny = true
		}
	}

	s.adjustInterval(producedAny)
}

// stagger partitions users into deterministic time slots if the population
// exceeds the configured threshold, sleeping between slots so the RPC gate
// is not saturated at cycle start. It returns the processing order.
func (s *Scheduler) stagger(ctx context.Context, userIDs []string) []string {
	if len(userIDs) <= s.cfg.StaggerThresholdUsers || s.cfg.StaggerWindow <= 0 {
		return userIDs
	}

	slots := len(userIDs)
	if slots > 50 {
		slots = 50 // bound the number of discrete sleeps regardless of population size
	}
	perSlot := s.cfg.StaggerWindow / time.Duration(slots)

	ordered := make([]string, 0, len(userIDs))
	usersPerSlot := (len(userIDs) + slots - 1) / slots
	for slot := 0; slot < slots; slot++ {
		start := slot * usersPerSlot
		if start >= len(userIDs) {
			break
		}
		end := start + usersPerSlot
		if end > len(userIDs) {
			end = len(userIDs)
		}
		ordered = append(ordered, userIDs[start:end]...)
		if slot < slots-1 {
			select {
			case <-ctx.Done():
				return ordered
			case <-time.After(perSlot):
			}
		}
	}
	return ordered
}

// processUser runs steps 4(a)-4(c) of scanCycle for one user. It returns
// true if at least one Opportunity was produced. Any error for this user
// is caught here and never propagates to the caller (absolute per-user
// error isolation, P7).
func (s *Scheduler) processUser(ctx context.Context, userID string, handle *wallet.Handle, snap balance.Snapshot) (producedOpportunity bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: panic processing user=%s: %v", userID, r)
			s.bus.Publish(events.EventUserError, map[string]any{"user_id": userID, "error": "panic"})
		}
	}()

	if handle == nil {
		return false
	}

	wasActive := snap.PreviousBalance >= s.cfg.MinTradingBalance
	nowActive := snap.Balance >= s.cfg.MinTradingBalance
	if nowActive && !wasActive {
		s.bus.Publish(events.EventUserActivated, map[string]any{"user_id": userID, "balance": snap.Balance})
	} else if !nowActive && wasActive {
		s.bus.Publish(events.EventUserDeactivated, map[string]any{"user_id": userID, "balance": snap.Balance})
	}

	if !nowActive {
		return false
	}

	var enabled []string
	if s.preferences != nil {
		enabled = s.preferences.EnabledStrategies(ctx, userID)
	}

	opportunities := s.scanner.Scan(ctx, userID, handle.PublicKey().String(), enabled)
	if len(opportunities) == 0 {
		return false
	}

	decisions := s.rank.Rank(ctx, opportunities)
	for _, decision := range decisions {
		s.queue.Enqueue(tradequeue.Item{UserID: userID, Decision: decision})
	}
	return len(decisions) > 0
}

// adjustInterval implements step 5's adaptive backoff: widen the interval
// on rate-limit pressure, widen it further on a sustained empty-scan
// streak, and decay back to the base interval once conditions improve.
func (s *Scheduler) adjustInterval(producedAny bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if producedAny {
		s.emptyStreak = 0
	} else {
		s.emptyStreak++
	}

	interval := s.cfg.BaseInterval
	if s.rateLimited {
		interval = time.Duration(float64(interval) * s.cfg.BackoffFactor)
	}
	if s.cfg.EmptyScanThreshold > 0 && s.emptyStreak >= s.cfg.EmptyScanThreshold {
		interval += s.cfg.EmptyScanExtraSleep
	}
	s.interval = interval

	// Decay by default; a fresh EventRateLimitBackoff signal during the next
	// cycle sets rateLimited again before adjustInterval next runs.
	s.rateLimited = false
}

// NotifyRateLimited marks the scheduler as having observed a rate-limit
// backoff signal since its last cycle; the next adjustInterval call widens
// the sleep before it decays back to baseline automatically.
func (s *Scheduler) NotifyRateLimited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited = true
}
