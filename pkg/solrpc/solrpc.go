// Package solrpc is a thin client boundary over the Solana JSON-RPC API,
// used by the Balance Oracle (C2) for reads and the Trade Queue (C6) for
// transaction submission.
package solrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is the surface the core depends on. It is deliberately narrow: one
// balance read, one batched balance read, one submit-and-confirm. A real
// implementation wraps solana-go/rpc.Client; tests use an in-memory fake.
type Client interface {
	// GetBalance returns the lamport balance of a single account.
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)

	// GetBalances returns lamport balances for multiple accounts in as few
	// RPC round-trips as the underlying client allows (a single
	// getMultipleAccounts call per invocation).
	GetBalances(ctx context.Context, accounts []solana.PublicKey) (map[solana.PublicKey]uint64, error)

	// SendTransaction submits a fully signed transaction and returns its
	// signature without waiting for confirmation.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// ConfirmTransaction polls until the transaction reaches at least the
	// "confirmed" commitment level, or ctx expires.
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// client adapts github.com/gagliardetto/solana-go/rpc to the Client
// interface.
type client struct {
	rpc *rpc.Client
}

// New dials a Solana JSON-RPC endpoint.
func New(endpoint string) Client {
	return &client{rpc: rpc.New(endpoint)}
}

func (c *client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

func (c *client) GetBalances(ctx context.Context, accounts []solana.PublicKey) (map[solana.PublicKey]uint64, error) {
	if len(accounts) == 0 {
		return map[solana.PublicKey]uint64{}, nil
	}
	out, err := c.rpc.GetMultipleAccountsWithOpts(ctx, accounts, &rpc.GetMultipleAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("get multiple accounts: %w", err)
	}

	balances := make(map[solana.PublicKey]uint64, len(accounts))
	for i, acc := range accounts {
		if i >= len(out.Value) || out.Value[i] == nil {
			balances[acc] = 0
			continue
		}
		balances[acc] = out.Value[i].Lamports
	}
	return balances, nil
}

func (c *client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func (c *client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return fmt.Errorf("get signature status: %w", err)
		}
		if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction failed on-chain: %v", st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
