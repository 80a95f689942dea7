// Package config provides environment-driven configuration for the trading
// core.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port string

	// Persistence
	DBPath    string
	WalletDir string

	// Solana
	SolanaRPCEndpoint string
	DerivationPath    string

	// Scheduler / scan cycle (C8)
	ScanInterval          time.Duration
	MinTradingBalance     uint64
	RPCBatchSize          int
	StaggerThresholdUsers int
	StaggerWindow         time.Duration
	EmptyScanThreshold    int
	EmptyScanExtraSleep   time.Duration
	RateLimitBackoff      float64

	// Price cache (C3)
	PriceCacheTTL time.Duration

	// Rate limiter / RPC gate (C9)
	RateLimitSustained float64
	RateLimitBurst     int

	// Trade queue (C6)
	ConfirmationTimeout time.Duration
	TradeQueueCapacity  int

	// Opportunity ranker (C5)
	RankerAddr    string
	RankerTimeout time.Duration

	// Auth
	JWTSecret string

	// Crypto
	MasterEncryptionSecret string

	// Localization
	Language string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/trading.db")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 dbPath,
		WalletDir:              getEnv("WALLET_DIR", "./data/wallets"),
		SolanaRPCEndpoint:      getEnv("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		DerivationPath:         getEnv("SOLANA_DERIVATION_PATH", "m/44'/501'/0'/0'"),
		ScanInterval:           getEnvScanInterval("SCAN_INTERVAL_SECONDS", 300*time.Second),
		MinTradingBalance:      uint64(getEnvInt64("MIN_TRADING_BALANCE_LAMPORTS", 10_000_000)),
		RPCBatchSize:           getEnvInt("RPC_BATCH_SIZE", 10),
		StaggerThresholdUsers:  getEnvInt("STAGGER_THRESHOLD_USERS", 100),
		StaggerWindow:          getEnvDuration("STAGGER_WINDOW_SECONDS", 60*time.Second),
		EmptyScanThreshold:     getEnvInt("EMPTY_SCAN_THRESHOLD", 10),
		EmptyScanExtraSleep:    getEnvDuration("EMPTY_SCAN_EXTRA_SLEEP_SECONDS", 30*time.Second),
		RateLimitBackoff:       getEnvFloat("RATE_LIMIT_BACKOFF", 0.5),
		PriceCacheTTL:          getEnvDuration("PRICE_CACHE_TTL_SECONDS", 120*time.Second),
		RateLimitSustained:     getEnvFloat("RATE_LIMIT_SUSTAINED", 10),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 20),
		ConfirmationTimeout:    getEnvDuration("CONFIRMATION_TIMEOUT_SECONDS", 60*time.Second),
		TradeQueueCapacity:     getEnvInt("TRADE_QUEUE_CAPACITY", 256),
		RankerAddr:             getEnv("RANKER_ADDR", ""),
		RankerTimeout:          getEnvDuration("RANKER_TIMEOUT_SECONDS", 5*time.Second),
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret"),
		MasterEncryptionSecret: getEnv("MASTER_ENCRYPTION_SECRET", ""),
		Language:               getEnv("LANGUAGE", "en"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// getEnvScanInterval enforces the spec's 5-second floor on the scan interval.
func getEnvScanInterval(key string, def time.Duration) time.Duration {
	d := getEnvDuration(key, def)
	if d < 5*time.Second {
		return 5 * time.Second
	}
	return d
}
