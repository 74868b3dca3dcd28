package source

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/libs/kafka"
	"log/slog"
)

func eventMessage(t *testing.T, event TransactionEvent) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "transactions", Value: raw}
}

func validEnvelope(t *testing.T) kafka.Envelope {
	t.Helper()
	env, err := kafka.NewEnvelope("transactions.submitted", 1, "corr-1")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestEventHandlerEmitsTransaction(t *testing.T) {
	var got []account.Transaction
	h := &eventHandler{
		emit: func(_ context.Context, tx account.Transaction) error {
			got = append(got, tx)
			return nil
		},
	}

	msg := eventMessage(t, TransactionEvent{
		Envelope: validEnvelope(t),
		Type:     "deposit",
		Client:   3,
		Tx:       11,
		Amount:   "2.5",
	})
	if err := h.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 emit, got %d", len(got))
	}
	if got[0].Kind != account.KindDeposit || got[0].Client != 3 || got[0].Tx != 11 || got[0].Amount.String() != "2.5000" {
		t.Fatalf("transaction wrong: %+v", got[0])
	}
}

func TestEventHandlerDropsMalformed(t *testing.T) {
	obs := &collectObserver{}
	h := &eventHandler{
		emit: func(context.Context, account.Transaction) error {
			t.Fatalf("malformed event must not emit")
			return nil
		},
		logger:   slog.Default(),
		observer: obs,
	}

	cases := []*sarama.ConsumerMessage{
		nil,
		{Topic: "transactions", Value: []byte("not json")},
		eventMessage(t, TransactionEvent{
			// missing envelope
			Type:   "deposit",
			Client: 1,
			Tx:     1,
			Amount: "1.0",
		}),
		eventMessage(t, TransactionEvent{
			Envelope: validEnvelope(t),
			Type:     "transfer",
			Client:   1,
			Tx:       1,
			Amount:   "1.0",
		}),
		eventMessage(t, TransactionEvent{
			Envelope: validEnvelope(t),
			Type:     "withdrawal",
			Client:   1,
			Tx:       1,
		}),
	}
	for i, msg := range cases {
		if err := h.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("case %d: malformed events must be consumed, got %v", i, err)
		}
	}
	if obs.malformed != len(cases) {
		t.Fatalf("expected %d malformed, got %d", len(cases), obs.malformed)
	}
}

func TestEventHandlerPropagatesEmitError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &eventHandler{
		emit: func(ctx context.Context, _ account.Transaction) error {
			return ctx.Err()
		},
	}
	msg := eventMessage(t, TransactionEvent{
		Envelope: validEnvelope(t),
		Type:     "deposit",
		Client:   1,
		Tx:       1,
		Amount:   "1.0",
	})
	if err := h.HandleMessage(ctx, msg); err == nil {
		t.Fatalf("expected emit error to propagate")
	}
}
