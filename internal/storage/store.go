// Package storage persists account snapshots keyed by client id. The
// in-memory store backs normal single-process runs; the Redis and Postgres
// stores are durable bindings behind the same contract.
package storage

import (
	"context"
	"sync"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
)

// Store is safe for concurrent use across distinct clients. Calls for the
// same client are serialized by the worker registry above it.
type Store interface {
	Load(ctx context.Context, client account.ClientID) (*account.Account, bool, error)
	Save(ctx context.Context, client account.ClientID, acct *account.Account) error
	Clients(ctx context.Context) ([]account.ClientID, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[account.ClientID]*account.Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[account.ClientID]*account.Account),
	}
}

func (s *MemoryStore) Load(_ context.Context, client account.ClientID) (*account.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[client]
	if !ok {
		return nil, false, nil
	}
	return acct.Clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, client account.ClientID, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[client] = acct.Clone()
	return nil
}

func (s *MemoryStore) Clients(_ context.Context) ([]account.ClientID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]account.ClientID, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}
