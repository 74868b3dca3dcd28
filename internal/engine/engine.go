// Package engine wires the pipeline together: one ingestion goroutine
// feeding a bounded channel, one dispatcher draining it in receipt order,
// and the worker registry fanning out per client. The single dispatcher is
// what keeps per-client order a prefix of global receipt order.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/registry"
	"github.com/fillmorejl/async-transaction-engine/internal/source"
	"github.com/fillmorejl/async-transaction-engine/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
)

const defaultChannelCapacity = 1024

type Engine struct {
	store    storage.Store
	registry *registry.Registry
	capacity int
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

func New(store storage.Store, reg *registry.Registry, channelCapacity int, logger *slog.Logger, metrics *Metrics) *Engine {
	if channelCapacity <= 0 {
		channelCapacity = defaultChannelCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		registry: reg,
		capacity: channelCapacity,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("txengine"),
	}
}

// Run consumes the source to exhaustion, shuts the registry down so every
// worker persists, and streams the final report to out. Context
// cancellation is treated as end of stream for endless sources; everything
// already dispatched is still drained and persisted.
func (e *Engine) Run(ctx context.Context, src source.Source, out io.Writer) error {
	ctx, span := e.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	records := make(chan account.Transaction, e.capacity)
	ingestDone := make(chan error, 1)

	go func() {
		defer close(records)
		ingestDone <- src.Run(ctx, func(ctx context.Context, tx account.Transaction) error {
			select {
			case records <- tx:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go e.registry.RunSweeper(sweepCtx)

	var dispatchErr error
	for tx := range records {
		if dispatchErr != nil {
			// Keep draining so the ingester can finish; the error aborts
			// the run below.
			continue
		}
		if err := e.registry.Dispatch(ctx, tx); err != nil {
			dispatchErr = err
		}
	}
	ingestErr := <-ingestDone
	stopSweeper()

	shutdownErr := e.registry.Shutdown(context.WithoutCancel(ctx))

	switch {
	case dispatchErr != nil && !errors.Is(dispatchErr, context.Canceled):
		return fmt.Errorf("dispatch: %w", dispatchErr)
	case ingestErr != nil && !errors.Is(ingestErr, context.Canceled):
		return fmt.Errorf("ingest: %w", ingestErr)
	case shutdownErr != nil:
		return fmt.Errorf("registry shutdown: %w", shutdownErr)
	}

	return e.WriteReport(context.WithoutCancel(ctx), out)
}

// WriteReport streams one row per known client. Row order is whatever the
// store enumerates; consumers that need sorting sort downstream.
func (e *Engine) WriteReport(ctx context.Context, out io.Writer) error {
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintln(w, "client,available,held,total,locked"); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	ids, err := e.store.Clients(ctx)
	if err != nil {
		return fmt.Errorf("enumerate accounts: %w", err)
	}
	for _, id := range ids {
		acct, found, err := e.store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load account %d: %w", id, err)
		}
		if !found {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d,%s,%s,%s,%t\n", id, acct.Available, acct.Held, acct.Total(), acct.Locked); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
