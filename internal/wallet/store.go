// Package wallet implements the Secure Wallet Store (C1): encrypted
// persistence of per-user Solana keypairs with create/import/export and the
// one-wallet-per-user invariant.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"trading-core/pkg/crypto"
	"trading-core/pkg/db"
	"trading-core/pkg/license"
	"trading-core/pkg/solwallet"
)

var (
	ErrAlreadyExists   = errors.New("user already has a wallet")
	ErrNotFound        = errors.New("no wallet for user")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrUnauthorized    = errors.New("caller is not authorized for this wallet")
)

// Handle is the cached, decrypted in-memory signing capability for a user.
// Never persisted, never logged, never exposed outside this package except
// through Sign.
type Handle struct {
	UserID    string
	publicKey solana.PublicKey
	privKey   solana.PrivateKey
}

// PublicKey returns the wallet's base58 address.
func (h *Handle) PublicKey() solana.PublicKey { return h.publicKey }

// Sign signs the given message bytes with the user's private key. The
// private key material never leaves this package.
func (h *Handle) Sign(message []byte) (solana.Signature, error) {
	return h.privKey.Sign(message)
}

// Store is the Secure Wallet Store. It memoizes unlocked handles so
// repeated lookups within a scan cycle don't re-decrypt.
type Store struct {
	db       *db.Database
	queries  *db.UserQueries
	keys     *crypto.KeyManager
	blobDir  string
	auditLog *auditLogger

	mu      sync.RWMutex
	handles map[string]*Handle // userID -> handle
}

// New builds a Store backed by database and on-disk encrypted blobs under
// blobDir.
func New(database *db.Database, keys *crypto.KeyManager, blobDir string) (*Store, error) {
	if err := os.MkdirAll(blobDir, 0o700); err != nil {
		return nil, fmt.Errorf("create wallet blob dir: %w", err)
	}
	return &Store{
		db:       database,
		queries:  db.NewUserQueries(database.DB),
		keys:     keys,
		blobDir:  blobDir,
		auditLog: newAuditLogger(),
		handles:  make(map[string]*Handle),
	}, nil
}

type walletBlob struct {
	Mnemonic string `json:"mnemonic"`
}

// Create provisions a fresh wallet for userID: generates a 12-word
// mnemonic, derives the keypair, encrypts the mnemonic, persists the
// encrypted blob and metadata row atomically, and returns the public key
// and mnemonic.
func (s *Store) Create(ctx context.Context, userID string) (publicKey, mnemonic string, err error) {
	if userID == "" {
		return "", "", fmt.Errorf("%w: empty user id", ErrUnauthorized)
	}

	kp, err := solwallet.Create()
	if err != nil {
		return "", "", fmt.Errorf("derive keypair: %w", err)
	}
	return s.persistNewWallet(ctx, userID, kp, 12)
}

// Import validates an operator-supplied mnemonic (word count and BIP39
// checksum) and provisions the user's wallet from it.
func (s *Store) Import(ctx context.Context, userID, mnemonic string) (publicKey string, err error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrUnauthorized)
	}

	kp, err := solwallet.DeriveFromMnemonic(mnemonic)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	wordCount := 12
	if len(mnemonic) > 0 {
		wordCount = countMnemonicWords(mnemonic)
	}

	pk, _, err := s.persistNewWallet(ctx, userID, kp, wordCount)
	return pk, err
}

func (s *Store) persistNewWallet(ctx context.Context, userID string, kp solwallet.Keypair, wordCount int) (publicKey, mnemonic string, err error) {
	blobPath := filepath.Join(s.blobDir, userID+".enc")

	blob, err := json.Marshal(walletBlob{Mnemonic: kp.Mnemonic})
	if err != nil {
		return "", "", fmt.Errorf("marshal wallet blob: %w", err)
	}
	ciphertext, err := s.keys.Encrypt(string(blob))
	if err != nil {
		return "", "", fmt.Errorf("encrypt wallet blob: %w", err)
	}
	if err := os.WriteFile(blobPath, []byte(ciphertext), 0o600); err != nil {
		return "", "", fmt.Errorf("write wallet blob: %w", err)
	}

	row := db.SecureWallet{
		WalletID:          uuid.NewString(),
		UserID:            userID,
		PublicKey:         kp.PublicKey().String(),
		DerivationPath:    solwallet.DerivationPath,
		MnemonicWordCount: wordCount,
		KDFMethod:         "argon2id",
		EncryptionMethod:  "aes-256-gcm",
		BlobPath:          blobPath,
	}
	if err := s.queries.InsertWallet(ctx, row); err != nil {
		// Clean up the orphaned blob before returning; persistence failure
		// must never leave a blob with no owning row.
		_ = os.Remove(blobPath)
		if errors.Is(err, db.ErrAlreadyExists) {
			return "", "", ErrAlreadyExists
		}
		return "", "", fmt.Errorf("persist wallet row: %w", err)
	}

	s.mu.Lock()
	s.handles[userID] = &Handle{UserID: userID, publicKey: kp.PublicKey(), privKey: kp.PrivateKey}
	s.mu.Unlock()

	return kp.PublicKey().String(), kp.Mnemonic, nil
}

// Export returns the previously stored mnemonic for userID after writing a
// security-audit log entry. Callers must check callerID == userID before
// invoking this (enforced again here as the authorization boundary).
func (s *Store) Export(ctx context.Context, callerID, userID string) (string, error) {
	if callerID != userID {
		return "", ErrUnauthorized
	}

	row, err := s.queries.GetWalletByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup wallet: %w", err)
	}

	ciphertext, err := os.ReadFile(row.BlobPath)
	if err != nil {
		return "", fmt.Errorf("read wallet blob: %w", err)
	}
	plaintext, err := s.keys.Decrypt(string(ciphertext))
	if err != nil {
		return "", fmt.Errorf("decrypt wallet blob: %w", err)
	}
	var blob walletBlob
	if err := json.Unmarshal([]byte(plaintext), &blob); err != nil {
		return "", fmt.Errorf("unmarshal wallet blob: %w", err)
	}

	s.auditLog.exported(userID, row.PublicKey)
	return blob.Mnemonic, nil
}

// Get returns the cached, decrypted handle for userID, reconstructing it
// from disk on first access if necessary. Returns nil, nil if the user has
// no wallet.
func (s *Store) Get(ctx context.Context, userID string) (*Handle, error) {
	s.mu.RLock()
	h, ok := s.handles[userID]
	s.mu.RUnlock()
	if ok {
		return h, nil
	}

	row, err := s.queries.GetWalletByUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup wallet: %w", err)
	}

	ciphertext, err := os.ReadFile(row.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("read wallet blob: %w", err)
	}
	plaintext, err := s.keys.Decrypt(string(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet blob: %w", err)
	}
	var blob walletBlob
	if err := json.Unmarshal([]byte(plaintext), &blob); err != nil {
		return nil, fmt.Errorf("unmarshal wallet blob: %w", err)
	}

	kp, err := solwallet.DeriveFromMnemonic(blob.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("re-derive keypair: %w", err)
	}

	handle := &Handle{UserID: userID, publicKey: kp.PublicKey(), privKey: kp.PrivateKey}
	s.mu.Lock()
	s.handles[userID] = handle
	s.mu.Unlock()

	_ = s.queries.TouchWalletUnlock(ctx, userID)
	return handle, nil
}

// ListUserIDs returns every user ID with a provisioned wallet.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.queries.ListWalletUserIDs(ctx)
}

// LoadAll eagerly rebuilds the handle cache at process start so no
// first-request latency is paid mid-cycle.
func (s *Store) LoadAll(ctx context.Context) (int, error) {
	rows, err := s.queries.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wallets: %w", err)
	}

	loaded := 0
	for _, row := range rows {
		if _, err := s.Get(ctx, row.UserID); err != nil {
			// One bad blob must not stop every other wallet from loading.
			continue
		}
		loaded++
	}
	return loaded, nil
}

func countMnemonicWords(m string) int {
	n, inWord := 0, false
	for _, r := range m {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}

// auditLogger writes one distinctly-prefixed line per security-sensitive
// operation, separate from ordinary operator logs.
type auditLogger struct {
	mu sync.Mutex
}

func newAuditLogger() *auditLogger { return &auditLogger{} }

func (a *auditLogger) exported(userID, publicKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	log.Printf("[AUDIT] export_key user=%s public_key=%s instance=%s at=%s", userID, publicKey, license.InstanceID(), time.Now().UTC().Format(time.RFC3339))
}
