package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"

	"trading-core/internal/api"
	"trading-core/internal/balance"
	"trading-core/internal/events"
	"trading-core/internal/ledger"
	"trading-core/internal/notifier"
	"trading-core/internal/pricecache"
	"trading-core/internal/ranker"
	"trading-core/internal/ratelimit"
	"trading-core/internal/scheduler"
	"trading-core/internal/strategy"
	"trading-core/internal/tradequeue"
	"trading-core/internal/wallet"
	"trading-core/pkg/config"
	"trading-core/pkg/crypto"
	"trading-core/pkg/db"
	"trading-core/pkg/i18n"
	"trading-core/pkg/solrpc"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}
	queries := db.NewUserQueries(database.DB)

	keys, err := crypto.NewKeyManagerFromSecret(cfg.MasterEncryptionSecret, filepath.Join(cfg.WalletDir, ".salt"))
	if err != nil {
		log.Fatalf("key manager init failed: %v", err)
	}

	wallets, err := wallet.New(database, keys, cfg.WalletDir)
	if err != nil {
		log.Fatalf("wallet store init failed: %v", err)
	}
	loaded, err := wallets.LoadAll(ctx)
	if err != nil {
		log.Printf("wallet preload failed (continuing, wallets will unlock lazily): %v", err)
	} else {
		log.Printf("preloaded %d wallet(s)", loaded)
	}

	gate := ratelimit.New(cfg.RateLimitSustained, cfg.RateLimitBurst)
	rpcClient := solrpc.New(cfg.SolanaRPCEndpoint)
	balances := balance.New(rpcClient, gate, bus, cfg.ScanInterval, cfg.RPCBatchSize)

	prices := pricecache.New(cfg.PriceCacheTTL)
	scanner := strategy.NewScanner(prices)
	// Illustrative strategy exercising the Scanner/Ranker/Trade Queue
	// pipeline end to end; production strategy bodies are external
	// collaborators per spec.md's scope boundary.
	scanner.Register(strategy.NewMomentumDemo("SOL", 0.01, 1_000_000, func(ctx context.Context, token string) (float64, error) {
		return 0, nil
	}))

	rank, err := ranker.New(cfg.RankerAddr, cfg.RankerTimeout)
	if err != nil {
		log.Fatalf("ranker init failed: %v", err)
	}
	defer rank.Close()

	// Real swap/transfer construction is an external collaborator (spec.md's
	// scope boundary excludes strategy bodies and swap routers); until one is
	// wired, every decision is recorded as skipped rather than submitted.
	executor := func(ctx context.Context, handle *wallet.Handle, decision ranker.Decision) (*solana.Transaction, error) {
		log.Printf("trade executor stub: skipping decision action=%s user=%s (no swap router wired)", decision.Opportunity.Action, decision.Opportunity.UserID)
		return nil, nil
	}
	queue := tradequeue.New(cfg.TradeQueueCapacity, wallets, gate, rpcClient, queries, bus, executor, cfg.ConfirmationTimeout)
	go queue.Run(ctx)
	defer queue.Close()

	led := ledger.New(queries)

	sockets := notifier.NewWebSocketSink()
	dispatcher := notifier.NewDispatcher(bus, notifier.NewMulti(notifier.LogSink{}, sockets))
	go dispatcher.Run(ctx)

	prefs := &preferenceAdapter{queries: queries}
	sched := scheduler.New(scheduler.Config{
		BaseInterval:          cfg.ScanInterval,
		MinTradingBalance:     cfg.MinTradingBalance,
		StaggerThresholdUsers: cfg.StaggerThresholdUsers,
		StaggerWindow:         cfg.StaggerWindow,
		EmptyScanThreshold:    cfg.EmptyScanThreshold,
		EmptyScanExtraSleep:   cfg.EmptyScanExtraSleep,
		BackoffFactor:         1 + cfg.RateLimitBackoff,
	}, wallets, balances, scanner, rank, queue, bus, prefs)
	go sched.Run(ctx)

	server := api.NewServer(bus, database, queries, wallets, balances, led, sockets, cfg.MinTradingBalance, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))
	cancel()
	time.Sleep(200 * time.Millisecond) // let the scheduler and queue observe ctx.Done before exit
}

// preferenceAdapter backs scheduler.PreferenceSource with the persisted
// per-user preferences (C11). A lookup failure is treated as "all
// strategies enabled" so a transient DB error never silently excludes a
// user's wallet from scanning.
type preferenceAdapter struct {
	queries *db.UserQueries
}

func (p *preferenceAdapter) EnabledStrategies(ctx context.Context, userID string) []string {
	prefs, err := p.queries.GetPreferences(ctx, userID)
	if err != nil {
		return nil
	}
	return prefs.EnabledStrategies
}
