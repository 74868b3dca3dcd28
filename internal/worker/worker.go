// Package worker runs one goroutine per active client. All transactions for
// a client flow through its worker's bounded inbox, which is what makes
// per-client ordering hold without locks around account state.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/storage"
	"github.com/fillmorejl/async-transaction-engine/libs/logging"
	"log/slog"
)

type ApplyObserver interface {
	ObserveApply(kind string, accepted bool, duration time.Duration)
}

type Worker struct {
	client   account.ClientID
	inbox    chan account.Transaction
	done     chan struct{}
	store    storage.Store
	logger   *slog.Logger
	observer ApplyObserver
	err      error
}

// Start spawns the worker goroutine. The worker rehydrates its snapshot
// from the store, drains the inbox in receipt order, and persists on inbox
// closure.
func Start(ctx context.Context, client account.ClientID, store storage.Store, inboxCapacity int, logger *slog.Logger, observer ApplyObserver) *Worker {
	if inboxCapacity < 1 {
		inboxCapacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		client:   client,
		inbox:    make(chan account.Transaction, inboxCapacity),
		done:     make(chan struct{}),
		store:    store,
		logger:   logger,
		observer: observer,
	}
	go w.run(ctx)
	return w
}

// Enqueue delivers one transaction, blocking while the inbox is full. Only
// the registry may call it, and never after Close.
func (w *Worker) Enqueue(ctx context.Context, tx account.Transaction) error {
	select {
	case w.inbox <- tx:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. The worker drains what is queued, persists, and then
// signals Done.
func (w *Worker) Close() {
	close(w.inbox)
}

func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err is valid once Done is closed. A non-nil error means the snapshot
// could not be loaded or persisted and the run must fail.
func (w *Worker) Err() error {
	return w.err
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	acct, found, err := w.store.Load(ctx, w.client)
	if err != nil {
		w.err = fmt.Errorf("rehydrate client %d: %w", w.client, err)
		// Keep draining so the dispatcher never blocks on a dead worker.
		for range w.inbox {
		}
		return
	}
	if !found {
		acct = account.New(w.client)
	}

	for tx := range w.inbox {
		start := time.Now()
		applyErr := acct.Apply(tx)
		if applyErr != nil {
			w.logger.Debug("transaction rejected", "client", tx.Client, "tx", tx.Tx, "kind", tx.Kind, "reason", applyErr)
		} else {
			w.logger.Log(ctx, logging.LevelTrace, "transaction applied", "client", tx.Client, "tx", tx.Tx, "kind", tx.Kind)
		}
		if w.observer != nil {
			w.observer.ObserveApply(tx.Kind, applyErr == nil, time.Since(start))
		}
	}

	if err := w.store.Save(ctx, w.client, acct); err != nil {
		w.err = fmt.Errorf("persist client %d: %w", w.client, err)
	}
}
