package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User represents an application user (an opaque external user identifier).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SecureWallet is the persisted metadata row for a user's custodied keypair.
// The encrypted mnemonic/seed envelope itself lives at BlobPath, not in this
// row.
type SecureWallet struct {
	WalletID          string
	UserID            string
	PublicKey         string
	DerivationPath    string
	MnemonicWordCount int
	KDFMethod         string
	EncryptionMethod  string
	BlobPath          string
	CreatedAt         time.Time
	LastUnlocked      *time.Time
}

// Trade is one attempted trade execution, success or failure.
type Trade struct {
	TradeID      string
	UserID       string
	StrategyName string
	Action       string
	Amount       uint64
	Profit       float64
	TxSignature  *string
	Outcome      string
	Details      string
	CreatedAt    time.Time
}

// Preferences holds per-user notification/strategy toggles.
type Preferences struct {
	UserID                string
	EnabledStrategies     []string
	NotificationsEnabled  bool
	UpdatedAt             time.Time
}

// BalanceSnapshotRow is the persisted last-known-good balance for a user in
// the balance_snapshots table. The table and its queries exist, but no
// runtime component writes or reads it; after a restart the oracle starts
// with an empty in-memory cache.
type BalanceSnapshotRow struct {
	UserID           string
	Balance          uint64
	PreviousBalance  uint64
	IsActive         bool
	RefreshedAt      time.Time
}

// CreateUser inserts a new user row if one doesn't already exist for this ID.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
		ON CONFLICT(id) DO NOTHING
	`, u.ID, nullableEmail(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(password_hash, ''), created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns a user by ID or nil if not found.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(password_hash, ''), created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func nullableEmail(email string) any {
	if email == "" {
		return nil
	}
	return strings.ToLower(email)
}
