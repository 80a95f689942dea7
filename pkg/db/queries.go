// Package db provides user-isolated database queries for multi-tenant architecture.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyExists  = errors.New("record already exists")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Secure Wallet Queries (C1)
// ----------------------------------------

// InsertWallet creates the metadata row for a newly provisioned wallet.
// Fails with ErrAlreadyExists if the user already has a wallet (the unique
// constraint on user_id enforces the one-wallet-per-user invariant even
// under races).
func (q *UserQueries) InsertWallet(ctx context.Context, w SecureWallet) error {
	if w.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO secure_wallets (
			wallet_id, user_id, public_key, derivation_path, mnemonic_word_count,
			kdf_method, encryption_method, blob_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, w.WalletID, w.UserID, w.PublicKey, w.DerivationPath, w.MnemonicWordCount,
		w.KDFMethod, w.EncryptionMethod, w.BlobPath)
	if err != nil && isUniqueConstraintErr(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetWalletByUser returns the wallet metadata row for userID, or ErrNotFound.
func (q *UserQueries) GetWalletByUser(ctx context.Context, userID string) (*SecureWallet, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var w SecureWallet
	var lastUnlocked sql.NullTime
	err := q.db.QueryRowContext(ctx, `
		SELECT wallet_id, user_id, public_key, derivation_path, mnemonic_word_count,
		       kdf_method, encryption_method, blob_path, created_at, last_unlocked
		FROM secure_wallets WHERE user_id = ?
	`, userID).Scan(&w.WalletID, &w.UserID, &w.PublicKey, &w.DerivationPath, &w.MnemonicWordCount,
		&w.KDFMethod, &w.EncryptionMethod, &w.BlobPath, &w.CreatedAt, &lastUnlocked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	if lastUnlocked.Valid {
		w.LastUnlocked = &lastUnlocked.Time
	}
	return &w, nil
}

// ListWalletUserIDs returns every user ID with a provisioned wallet.
func (q *UserQueries) ListWalletUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT user_id FROM secure_wallets ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query wallet user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListWallets loads every wallet metadata row, used to eagerly rebuild the
// handle cache at process start (loadAll).
func (q *UserQueries) ListWallets(ctx context.Context) ([]SecureWallet, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT wallet_id, user_id, public_key, derivation_path, mnemonic_word_count,
		       kdf_method, encryption_method, blob_path, created_at, last_unlocked
		FROM secure_wallets
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []SecureWallet
	for rows.Next() {
		var w SecureWallet
		var lastUnlocked sql.NullTime
		if err := rows.Scan(&w.WalletID, &w.UserID, &w.PublicKey, &w.DerivationPath, &w.MnemonicWordCount,
			&w.KDFMethod, &w.EncryptionMethod, &w.BlobPath, &w.CreatedAt, &lastUnlocked); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		if lastUnlocked.Valid {
			w.LastUnlocked = &lastUnlocked.Time
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// TouchWalletUnlock updates last_unlocked for a user's wallet.
func (q *UserQueries) TouchWalletUnlock(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE secure_wallets SET last_unlocked = CURRENT_TIMESTAMP WHERE user_id = ?
	`, userID)
	return err
}

// ----------------------------------------
// Trade Record Queries (C7)
// ----------------------------------------

// InsertTrade appends a Trade Record. Trade records are append-only; there
// is no update method.
func (q *UserQueries) InsertTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, user_id, strategy_name, action, amount, profit,
			tx_signature, outcome, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, t.TradeID, t.UserID, t.StrategyName, t.Action, t.Amount, t.Profit,
		t.TxSignature, t.Outcome, t.Details)
	return err
}

// GetTradesByUser returns the most recent trades for a user, newest first.
func (q *UserQueries) GetTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT trade_id, user_id, strategy_name, action, amount, profit,
		       tx_signature, outcome, COALESCE(details, ''), created_at
		FROM trades
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var sig sql.NullString
		if err := rows.Scan(&t.TradeID, &t.UserID, &t.StrategyName, &t.Action, &t.Amount, &t.Profit,
			&sig, &t.Outcome, &t.Details, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if sig.Valid {
			t.TxSignature = &sig.String
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// PerformanceMetrics is the derived aggregate returned by GetMetrics.
type PerformanceMetrics struct {
	UserID      string
	TotalProfit float64
	TradeCount  int
	WinCount    int
	LossCount   int
	WinRate     float64
	BestTrade   float64
	WorstTrade  float64
}

// GetMetrics computes the performance aggregate for userID directly from its
// Trade Records, so the result is always consistent with the ledger
// (recomputed, not incrementally maintained).
func (q *UserQueries) GetMetrics(ctx context.Context, userID string) (*PerformanceMetrics, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	m := &PerformanceMetrics{UserID: userID}
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(profit), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN profit < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(profit), 0),
			COALESCE(MIN(profit), 0)
		FROM trades WHERE user_id = ? AND outcome = 'success'
	`, userID).Scan(&m.TotalProfit, &m.TradeCount, &m.WinCount, &m.LossCount, &m.BestTrade, &m.WorstTrade)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	if m.TradeCount > 0 {
		m.WinRate = float64(m.WinCount) / float64(m.TradeCount)
	}
	return m, nil
}

// LeaderboardEntry is an anonymized leaderboard row: deliberately has no
// user-identifying field (P11).
type LeaderboardEntry struct {
	Rank    int
	Profit  float64
	WinRate float64
}

// GetLeaderboard returns the top-N users by total realized profit, with no
// user-identifying column in the result.
func (q *UserQueries) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT
			COALESCE(SUM(profit), 0) AS total_profit,
			COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0) AS wins,
			COUNT(*) AS trades
		FROM trades
		WHERE outcome = 'success'
		GROUP BY user_id
		ORDER BY total_profit DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var profit float64
		var wins, trades int
		if err := rows.Scan(&profit, &wins, &trades); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		winRate := 0.0
		if trades > 0 {
			winRate = float64(wins) / float64(trades)
		}
		entries = append(entries, LeaderboardEntry{Rank: rank, Profit: profit, WinRate: winRate})
		rank++
	}
	return entries, rows.Err()
}

// ----------------------------------------
// Preferences Queries (C11)
// ----------------------------------------

// UpsertPreferences creates or updates a user's preferences row.
func (q *UserQueries) UpsertPreferences(ctx context.Context, p Preferences) error {
	if p.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, enabled_strategies, notifications_enabled, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled_strategies = excluded.enabled_strategies,
			notifications_enabled = excluded.notifications_enabled,
			updated_at = CURRENT_TIMESTAMP
	`, p.UserID, strings.Join(p.EnabledStrategies, ","), p.NotificationsEnabled)
	return err
}

// GetPreferences returns a user's preferences, or sensible defaults if none
// have ever been set (every strategy enabled, notifications on).
func (q *UserQueries) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var p Preferences
	var csv string
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, enabled_strategies, notifications_enabled, updated_at
		FROM user_preferences WHERE user_id = ?
	`, userID).Scan(&p.UserID, &csv, &p.NotificationsEnabled, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Preferences{UserID: userID, NotificationsEnabled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	if csv != "" {
		p.EnabledStrategies = strings.Split(csv, ",")
	}
	return &p, nil
}

// ----------------------------------------
// Balance Snapshot Queries (C11 persisted cache; no runtime component calls
// these: neither the oracle nor the scheduler writes or reads snapshots)
// ----------------------------------------

// UpsertBalanceSnapshot persists the last-known balance for a user.
func (q *UserQueries) UpsertBalanceSnapshot(ctx context.Context, s BalanceSnapshotRow) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (user_id, balance, previous_balance, is_active, refreshed_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = excluded.balance,
			previous_balance = excluded.previous_balance,
			is_active = excluded.is_active,
			refreshed_at = CURRENT_TIMESTAMP
	`, s.UserID, s.Balance, s.PreviousBalance, s.IsActive)
	return err
}

// GetBalanceSnapshot returns the persisted last-known balance for a user, or
// nil if none has ever been recorded.
func (q *UserQueries) GetBalanceSnapshot(ctx context.Context, userID string) (*BalanceSnapshotRow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	var s BalanceSnapshotRow
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, balance, previous_balance, is_active, refreshed_at
		FROM balance_snapshots WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.Balance, &s.PreviousBalance, &s.IsActive, &s.RefreshedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance snapshot: %w", err)
	}
	return &s, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
