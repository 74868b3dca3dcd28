// Package registry owns the live workers. It is a keyed cache bounded by
// capacity and idle time; evicting a worker drains and persists it
// (passivation), and the next dispatch for that client rehydrates a fresh
// one from the store.
package registry

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/storage"
	"github.com/fillmorejl/async-transaction-engine/internal/worker"
	"log/slog"
)

const (
	ReasonCapacity = "capacity"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

type Config struct {
	MaxCapacity   int
	IdleTimeout   time.Duration
	InboxCapacity int
}

type Observer interface {
	SetLiveWorkers(n int)
	ObservePassivation(reason string)
}

var (
	ErrShutDown = errors.New("registry shut down")

	// errRetry is an internal signal: the target worker closed between
	// lookup and delivery, redo the lookup.
	errRetry = errors.New("worker closed, retry dispatch")
)

type entry struct {
	w        *worker.Worker
	elem     *list.Element // nil once eviction has begun
	lastUsed time.Time
	evicting bool // guarded by Registry.mu

	sendMu sync.Mutex
	closed bool // guarded by sendMu
}

type Registry struct {
	mu       sync.Mutex
	entries  map[account.ClientID]*entry
	lru      *list.List // front = most recently used, values are ClientID
	err      error
	shutdown bool

	baseCtx  context.Context
	cfg      Config
	store    storage.Store
	logger   *slog.Logger
	observer Observer
	applyObs worker.ApplyObserver
}

func New(baseCtx context.Context, cfg Config, store storage.Store, logger *slog.Logger, observer Observer, applyObs worker.ApplyObserver) *Registry {
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 5000
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:  make(map[account.ClientID]*entry),
		lru:      list.New(),
		baseCtx:  baseCtx,
		cfg:      cfg,
		store:    store,
		logger:   logger,
		observer: observer,
		applyObs: applyObs,
	}
}

// Dispatch delivers tx to the worker for its client, creating one if
// needed. It blocks while the worker's inbox is full, and it serializes
// against in-flight evictions for the same client so a replacement worker
// never runs before the evicted one has persisted.
func (r *Registry) Dispatch(ctx context.Context, tx account.Transaction) error {
	for {
		r.mu.Lock()
		if r.err != nil {
			err := r.err
			r.mu.Unlock()
			return err
		}
		if r.shutdown {
			r.mu.Unlock()
			return ErrShutDown
		}

		if e, ok := r.entries[tx.Client]; ok {
			if e.evicting {
				r.mu.Unlock()
				select {
				case <-e.w.Done():
				case <-ctx.Done():
					return ctx.Err()
				}
				r.removeIfCurrent(tx.Client, e)
				continue
			}
			e.lastUsed = time.Now()
			r.lru.MoveToFront(e.elem)
			r.mu.Unlock()

			err := r.send(ctx, e, tx)
			if errors.Is(err, errRetry) {
				select {
				case <-e.w.Done():
				case <-ctx.Done():
					return ctx.Err()
				}
				r.removeIfCurrent(tx.Client, e)
				continue
			}
			return err
		}

		if len(r.entries) >= r.cfg.MaxCapacity {
			victimID, victim := r.oldestLocked()
			if victim != nil {
				r.beginEvictLocked(victim)
				r.mu.Unlock()
				r.finishEvict(victimID, victim, ReasonCapacity)
				continue
			}
		}

		e := &entry{
			w:        worker.Start(r.baseCtx, tx.Client, r.store, r.cfg.InboxCapacity, r.logger, r.applyObs),
			lastUsed: time.Now(),
		}
		e.elem = r.lru.PushFront(tx.Client)
		r.entries[tx.Client] = e
		live := len(r.entries)
		r.mu.Unlock()

		if r.observer != nil {
			r.observer.SetLiveWorkers(live)
		}
		r.logger.Log(ctx, slog.LevelDebug, "worker started", "client", tx.Client, "live", live)

		err := r.send(ctx, e, tx)
		if errors.Is(err, errRetry) {
			select {
			case <-e.w.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			r.removeIfCurrent(tx.Client, e)
			continue
		}
		return err
	}
}

func (r *Registry) send(ctx context.Context, e *entry, tx account.Transaction) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed {
		return errRetry
	}
	return e.w.Enqueue(ctx, tx)
}

// Len reports the number of live workers, evicting ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RunSweeper passivates idle workers until ctx is done. A worker is idle
// once it has seen no dispatch for the configured idle timeout.
func (r *Registry) RunSweeper(ctx context.Context) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	interval := r.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweepIdle(now)
		}
	}
}

func (r *Registry) sweepIdle(now time.Time) {
	type victim struct {
		id account.ClientID
		e  *entry
	}
	var victims []victim

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	for id, e := range r.entries {
		if e.evicting {
			continue
		}
		if now.Sub(e.lastUsed) >= r.cfg.IdleTimeout {
			r.beginEvictLocked(e)
			victims = append(victims, victim{id: id, e: e})
		}
	}
	r.mu.Unlock()

	for _, v := range victims {
		r.finishEvict(v.id, v.e, ReasonIdle)
	}
}

// Shutdown evicts every remaining worker, forcing each to persist its
// snapshot, and returns the first worker or store error seen during the
// run.
func (r *Registry) Shutdown(ctx context.Context) error {
	type handle struct {
		id     account.ClientID
		e      *entry
		owned bool // this call runs the eviction; otherwise just await it
	}
	var handles []handle

	r.mu.Lock()
	r.shutdown = true
	for id, e := range r.entries {
		h := handle{id: id, e: e, owned: !e.evicting}
		if h.owned {
			r.beginEvictLocked(e)
		}
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		if h.owned {
			r.finishEvict(h.id, h.e, ReasonShutdown)
			continue
		}
		select {
		case <-h.e.w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// beginEvictLocked marks the entry so no new dispatch fast-paths to it.
// Caller holds r.mu.
func (r *Registry) beginEvictLocked(e *entry) {
	e.evicting = true
	if e.elem != nil {
		r.lru.Remove(e.elem)
		e.elem = nil
	}
}

// finishEvict closes the inbox, waits for the drain-and-persist to finish,
// and removes the handle. Never called with r.mu held.
func (r *Registry) finishEvict(id account.ClientID, e *entry, reason string) {
	e.sendMu.Lock()
	e.closed = true
	e.w.Close()
	e.sendMu.Unlock()

	<-e.w.Done()

	r.mu.Lock()
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
	}
	if err := e.w.Err(); err != nil && r.err == nil {
		r.err = err
	}
	live := len(r.entries)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.SetLiveWorkers(live)
		r.observer.ObservePassivation(reason)
	}
	r.logger.Debug("worker passivated", "client", id, "reason", reason, "live", live)
}

func (r *Registry) removeIfCurrent(id account.ClientID, e *entry) {
	r.mu.Lock()
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
	}
	if err := e.w.Err(); err != nil && r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *Registry) oldestLocked() (account.ClientID, *entry) {
	back := r.lru.Back()
	if back == nil {
		return 0, nil
	}
	id := back.Value.(account.ClientID)
	return id, r.entries[id]
}
