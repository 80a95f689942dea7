package solrpc

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Fake is an in-memory Client used by tests. Balances and per-call failures
// are configured directly on the struct; it is safe for concurrent use.
type Fake struct {
	mu        sync.Mutex
	Balances  map[solana.PublicKey]uint64
	FailNext  bool
	FailCount int
	Sent      []solana.Transaction
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{Balances: make(map[solana.PublicKey]uint64)}
}

func (f *Fake) SetBalance(pk solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[pk] = lamports
}

func (f *Fake) consumeFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCount > 0 {
		f.FailCount--
		return true
	}
	if f.FailNext {
		f.FailNext = false
		return true
	}
	return false
}

func (f *Fake) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	if f.consumeFailure() {
		return 0, ErrFakeRPCFailure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balances[account], nil
}

func (f *Fake) GetBalances(ctx context.Context, accounts []solana.PublicKey) (map[solana.PublicKey]uint64, error) {
	if f.consumeFailure() {
		return nil, ErrFakeRPCFailure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[solana.PublicKey]uint64, len(accounts))
	for _, acc := range accounts {
		out[acc] = f.Balances[acc]
	}
	return out, nil
}

func (f *Fake) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.consumeFailure() {
		return solana.Signature{}, ErrFakeRPCFailure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, *tx)
	var sig solana.Signature
	sig[0] = byte(len(f.Sent))
	return sig, nil
}

func (f *Fake) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	if f.consumeFailure() {
		return ErrFakeRPCFailure
	}
	return nil
}
