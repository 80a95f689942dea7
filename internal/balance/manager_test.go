package balance

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"trading-core/internal/ratelimit"
	"trading-core/pkg/solrpc"
)

func testAccount(seed byte) solana.PublicKey {
	src := make([]byte, ed25519.SeedSize)
	src[0] = seed
	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(src))
	return priv.PublicKey()
}

func TestGetBalanceCachesWithinTTL(t *testing.T) {
	fake := solrpc.NewFake()
	acct := testAccount(1)
	fake.SetBalance(acct, 1_000_000)

	o := New(fake, ratelimit.New(100, 10), nil, time.Minute, 10)
	ctx := context.Background()

	got := o.GetBalance(ctx, "user-1", acct)
	if got != 1_000_000 {
		t.Fatalf("expected 1000000, got %d", got)
	}

	fake.SetBalance(acct, 999) // change underlying value
	got = o.GetBalance(ctx, "user-1", acct)
	if got != 1_000_000 {
		t.Fatalf("expected cached value 1000000 within TTL, got %d", got)
	}
}

func TestGetBalanceFallsBackOnRPCFailure(t *testing.T) {
	fake := solrpc.NewFake()
	acct := testAccount(2)
	fake.SetBalance(acct, 500)

	o := New(fake, ratelimit.New(100, 10), nil, time.Millisecond, 10)
	ctx := context.Background()

	got := o.GetBalance(ctx, "user-1", acct)
	if got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}

	time.Sleep(5 * time.Millisecond) // expire TTL
	fake.FailNext = true
	got = o.GetBalance(ctx, "user-1", acct)
	if got != 500 {
		t.Fatalf("expected fallback to last known 500 on RPC failure, got %d", got)
	}
}

func TestGetBalanceUnknownUserNoCacheReturnsZero(t *testing.T) {
	fake := solrpc.NewFake()
	fake.FailNext = true
	o := New(fake, ratelimit.New(100, 10), nil, time.Minute, 10)

	got := o.GetBalance(context.Background(), "brand-new-user", testAccount(3))
	if got != 0 {
		t.Fatalf("expected 0 for unknown user with failed RPC and no cache, got %d", got)
	}
}

func TestBatchGetBalancesChunks(t *testing.T) {
	fake := solrpc.NewFake()
	accounts := make(map[string]solana.PublicKey)
	for i := 0; i < 25; i++ {
		acct := testAccount(byte(i + 10))
		userID := string(rune('a' + i))
		accounts[userID] = acct
		fake.SetBalance(acct, uint64(i*100))
	}

	o := New(fake, ratelimit.New(1000, 100), nil, time.Minute, 10)
	results := o.BatchGetBalances(context.Background(), accounts)

	if len(results) != 25 {
		t.Fatalf("expected 25 results, got %d", len(results))
	}
	for i := 0; i < 25; i++ {
		userID := string(rune('a' + i))
		if results[userID].Balance != uint64(i*100) {
			t.Fatalf("user %s: expected %d, got %d", userID, i*100, results[userID].Balance)
		}
	}
}

func TestBatchGetBalancesPartialFailureKeepsLastKnown(t *testing.T) {
	fake := solrpc.NewFake()
	acct1, acct2 := testAccount(40), testAccount(41)
	fake.SetBalance(acct1, 111)
	fake.SetBalance(acct2, 222)

	o := New(fake, ratelimit.New(1000, 100), nil, time.Nanosecond, 10)
	accounts := map[string]solana.PublicKey{"u1": acct1, "u2": acct2}

	first := o.BatchGetBalances(context.Background(), accounts)
	if first["u1"].Balance != 111 || first["u2"].Balance != 222 {
		t.Fatalf("unexpected first batch result: %+v", first)
	}

	time.Sleep(time.Millisecond)
	fake.FailNext = true
	second := o.BatchGetBalances(context.Background(), accounts)
	if second["u1"].Balance != 111 || second["u2"].Balance != 222 {
		t.Fatalf("expected last-known-good balances preserved after RPC failure, got %+v", second)
	}
	if !second["u1"].Stale {
		t.Fatalf("expected snapshot marked stale after failed refresh")
	}
}
