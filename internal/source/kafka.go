package source

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/libs/kafka"
	"log/slog"
)

// TransactionEvent is the wire form of one ledger event on the transaction
// topic. Records are keyed by client id so per-client order survives
// partitioning.
type TransactionEvent struct {
	kafka.Envelope
	Type   string `json:"type"`
	Client uint16 `json:"client"`
	Tx     uint32 `json:"tx"`
	Amount string `json:"amount,omitempty"`
}

type KafkaSource struct {
	consumer *kafka.Consumer
	topics   []string
	logger   *slog.Logger
	observer IngestObserver
}

func NewKafkaSource(consumer *kafka.Consumer, topics []string, logger *slog.Logger, observer IngestObserver) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{
		consumer: consumer,
		topics:   topics,
		logger:   logger,
		observer: observer,
	}
}

// Run consumes until ctx is canceled. Unlike the file source there is no
// natural end of stream.
func (s *KafkaSource) Run(ctx context.Context, emit Emit) error {
	handler := &eventHandler{
		emit:     emit,
		logger:   s.logger,
		observer: s.observer,
	}
	return s.consumer.Consume(ctx, s.topics, handler)
}

type eventHandler struct {
	emit     Emit
	logger   *slog.Logger
	observer IngestObserver
}

func (h *eventHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	tx, ok := h.decode(msg)
	if !ok {
		// Malformed events are dropped, not retried; returning nil marks
		// the offset.
		return nil
	}

	if err := h.emit(ctx, tx); err != nil {
		return err
	}
	if h.observer != nil {
		h.observer.ObserveIngested()
	}
	return nil
}

func (h *eventHandler) decode(msg *sarama.ConsumerMessage) (account.Transaction, bool) {
	if msg == nil || len(msg.Value) == 0 {
		return h.drop("empty message", nil)
	}

	var event TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return h.drop("decode transaction event", err)
	}
	if err := event.Validate(); err != nil {
		return h.drop("invalid event envelope", err)
	}

	fields := []string{
		event.Type,
		strconv.FormatUint(uint64(event.Client), 10),
		strconv.FormatUint(uint64(event.Tx), 10),
		event.Amount,
	}
	tx, err := parseFields(fields)
	if err != nil {
		return h.drop("invalid transaction event", err)
	}
	return tx, true
}

func (h *eventHandler) drop(reason string, err error) (account.Transaction, bool) {
	h.logger.Warn("dropping transaction event", "reason", reason, "error", err)
	if h.observer != nil {
		h.observer.ObserveMalformed()
	}
	return account.Transaction{}, false
}
