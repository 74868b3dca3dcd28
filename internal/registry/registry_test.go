package registry

import (
	"context"
	"testing"
	"time"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/money"
	"github.com/fillmorejl/async-transaction-engine/internal/storage"
)

func amt(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return a
}

func dispatchAll(t *testing.T, r *Registry, txs []account.Transaction) {
	t.Helper()
	ctx := context.Background()
	for _, tx := range txs {
		if err := r.Dispatch(ctx, tx); err != nil {
			t.Fatalf("dispatch %s: %v", tx, err)
		}
	}
}

func interleaved(t *testing.T) []account.Transaction {
	return []account.Transaction{
		{Kind: account.KindDeposit, Client: 6, Tx: 1, Amount: amt(t, "10.0")},
		{Kind: account.KindDeposit, Client: 7, Tx: 2, Amount: amt(t, "20.0")},
		{Kind: account.KindWithdrawal, Client: 6, Tx: 3, Amount: amt(t, "2.5")},
		{Kind: account.KindDispute, Client: 7, Tx: 2},
		{Kind: account.KindDeposit, Client: 6, Tx: 4, Amount: amt(t, "1.0")},
		{Kind: account.KindResolve, Client: 7, Tx: 2},
		{Kind: account.KindWithdrawal, Client: 7, Tx: 5, Amount: amt(t, "5.0")},
		{Kind: account.KindDispute, Client: 6, Tx: 1},
		{Kind: account.KindChargeback, Client: 6, Tx: 1},
	}
}

func finalState(t *testing.T, store *storage.MemoryStore, client account.ClientID) *account.Account {
	t.Helper()
	acct, found, err := store.Load(context.Background(), client)
	if err != nil || !found {
		t.Fatalf("load %d: found=%v err=%v", client, found, err)
	}
	return acct
}

func TestPassivationRoundTripMatchesUnbounded(t *testing.T) {
	ctx := context.Background()

	run := func(capacity int) (*account.Account, *account.Account) {
		store := storage.NewMemoryStore()
		r := New(ctx, Config{MaxCapacity: capacity, InboxCapacity: 4}, store, nil, nil, nil)
		dispatchAll(t, r, interleaved(t))
		if err := r.Shutdown(ctx); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		return finalState(t, store, 6), finalState(t, store, 7)
	}

	// Capacity 1 forces a passivation on every client switch; the result
	// must match an unbounded registry.
	b6, b7 := run(1)
	u6, u7 := run(100)

	for _, pair := range []struct {
		name      string
		got, want *account.Account
	}{
		{"client 6", b6, u6},
		{"client 7", b7, u7},
	} {
		if pair.got.Available != pair.want.Available || pair.got.Held != pair.want.Held || pair.got.Locked != pair.want.Locked {
			t.Fatalf("%s diverged: bounded=%+v unbounded=%+v", pair.name, pair.got, pair.want)
		}
		if len(pair.got.History) != len(pair.want.History) {
			t.Fatalf("%s history diverged", pair.name)
		}
	}

	// Client 6 spent part of the disputed deposit before the chargeback,
	// so available ends negative: 10 - 2.5 + 1 - 10 = -1.5.
	if b6.Available.String() != "-1.5000" || b6.Held.String() != "0.0000" || !b6.Locked {
		t.Fatalf("client 6 final state wrong: %+v", b6)
	}
	if b7.Available.String() != "15.0000" || b7.Held.String() != "0.0000" {
		t.Fatalf("client 7 final state wrong: %+v", b7)
	}
}

func TestCapacityEviction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := New(ctx, Config{MaxCapacity: 2, InboxCapacity: 4}, store, nil, nil, nil)

	for client := account.ClientID(1); client <= 5; client++ {
		tx := account.Transaction{Kind: account.KindDeposit, Client: client, Tx: account.TxID(client), Amount: amt(t, "1.0")}
		if err := r.Dispatch(ctx, tx); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	if n := r.Len(); n > 2 {
		t.Fatalf("capacity exceeded: %d live workers", n)
	}

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for client := account.ClientID(1); client <= 5; client++ {
		acct := finalState(t, store, client)
		if acct.Available.String() != "1.0000" {
			t.Fatalf("client %d lost its deposit: %+v", client, acct)
		}
	}
}

func TestDispatchAfterShutdownFails(t *testing.T) {
	ctx := context.Background()
	r := New(ctx, Config{}, storage.NewMemoryStore(), nil, nil, nil)
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	err := r.Dispatch(ctx, account.Transaction{Kind: account.KindDeposit, Client: 1, Tx: 1, Amount: amt(t, "1.0")})
	if err == nil {
		t.Fatalf("expected dispatch to fail after shutdown")
	}
}

func TestIdleSweepPassivates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewMemoryStore()
	r := New(ctx, Config{MaxCapacity: 10, IdleTimeout: 20 * time.Millisecond, InboxCapacity: 4}, store, nil, nil, nil)

	tx := account.Transaction{Kind: account.KindDeposit, Client: 1, Tx: 1, Amount: amt(t, "3.0")}
	if err := r.Dispatch(ctx, tx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Sweep manually rather than via RunSweeper to keep timing deterministic.
	deadline := time.Now().Add(5 * time.Second)
	for r.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle worker never passivated")
		}
		time.Sleep(5 * time.Millisecond)
		r.sweepIdle(time.Now())
	}

	acct := finalState(t, store, 1)
	if acct.Available.String() != "3.0000" {
		t.Fatalf("idle passivation lost state: %+v", acct)
	}

	// The client must be usable again after passivation.
	if err := r.Dispatch(ctx, account.Transaction{Kind: account.KindWithdrawal, Client: 1, Tx: 2, Amount: amt(t, "1.0")}); err != nil {
		t.Fatalf("dispatch after passivation: %v", err)
	}
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := finalState(t, store, 1).Available.String(); got != "2.0000" {
		t.Fatalf("rehydrated state wrong: %s", got)
	}
}

type countingObserver struct {
	passivations int
	live         int
}

func (o *countingObserver) SetLiveWorkers(n int)      { o.live = n }
func (o *countingObserver) ObservePassivation(string) { o.passivations++ }

func TestObserverSeesPassivations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	obs := &countingObserver{}
	r := New(ctx, Config{MaxCapacity: 1, InboxCapacity: 4}, store, nil, obs, nil)

	dispatchAll(t, r, []account.Transaction{
		{Kind: account.KindDeposit, Client: 1, Tx: 1, Amount: amt(t, "1.0")},
		{Kind: account.KindDeposit, Client: 2, Tx: 2, Amount: amt(t, "1.0")},
		{Kind: account.KindDeposit, Client: 1, Tx: 3, Amount: amt(t, "1.0")},
	})
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if obs.passivations < 3 {
		t.Fatalf("expected at least 3 passivations, got %d", obs.passivations)
	}
	if obs.live != 0 {
		t.Fatalf("expected 0 live workers after shutdown, got %d", obs.live)
	}
}
