package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"log/slog"
)

// RetryStore wraps a durable store with bounded retries. After the last
// attempt the error propagates, which the pipeline treats as fatal.
type RetryStore struct {
	inner    Store
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

func WithRetry(inner Store, attempts int, backoff time.Duration, logger *slog.Logger) *RetryStore {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryStore{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
}

func (s *RetryStore) Load(ctx context.Context, client account.ClientID) (*account.Account, bool, error) {
	var (
		acct  *account.Account
		found bool
	)
	err := s.retry(ctx, "load", client, func() error {
		var err error
		acct, found, err = s.inner.Load(ctx, client)
		return err
	})
	return acct, found, err
}

func (s *RetryStore) Save(ctx context.Context, client account.ClientID, acct *account.Account) error {
	return s.retry(ctx, "save", client, func() error {
		return s.inner.Save(ctx, client, acct)
	})
}

func (s *RetryStore) Clients(ctx context.Context) ([]account.ClientID, error) {
	var ids []account.ClientID
	err := s.retry(ctx, "clients", 0, func() error {
		var err error
		ids, err = s.inner.Clients(ctx)
		return err
	})
	return ids, err
}

func (s *RetryStore) retry(ctx context.Context, op string, client account.ClientID, fn func() error) error {
	var lastErr error
	delay := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		s.logger.Error("store operation failed", "op", op, "client", client, "attempt", attempt, "error", lastErr)
		if attempt == s.attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("store %s for client %d: %w", op, client, lastErr)
}
