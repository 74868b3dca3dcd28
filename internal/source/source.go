// Package source turns external record streams into transactions. The CSV
// file source is the default; the Kafka source consumes the same records as
// JSON events.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/money"
)

// Emit hands one parsed transaction to the pipeline. It blocks when the
// pipeline channel is full, which is how backpressure reaches the source.
type Emit func(ctx context.Context, tx account.Transaction) error

type Source interface {
	Run(ctx context.Context, emit Emit) error
}

type IngestObserver interface {
	ObserveIngested()
	ObserveMalformed()
}

// parseFields builds a transaction from the textual columns
// type,client,tx[,amount]. Field whitespace is tolerated.
func parseFields(fields []string) (account.Transaction, error) {
	if len(fields) < 3 {
		return account.Transaction{}, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
	}

	kind := strings.ToLower(strings.TrimSpace(fields[0]))
	if !account.ValidKind(kind) {
		return account.Transaction{}, fmt.Errorf("unknown transaction type %q", fields[0])
	}

	client, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 16)
	if err != nil {
		return account.Transaction{}, fmt.Errorf("invalid client id %q", fields[1])
	}

	txID, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return account.Transaction{}, fmt.Errorf("invalid tx id %q", fields[2])
	}

	tx := account.Transaction{
		Kind:   kind,
		Client: account.ClientID(client),
		Tx:     account.TxID(txID),
	}

	if kind == account.KindDeposit || kind == account.KindWithdrawal {
		if len(fields) < 4 || strings.TrimSpace(fields[3]) == "" {
			return account.Transaction{}, fmt.Errorf("%s requires an amount", kind)
		}
		amount, err := money.Parse(fields[3])
		if err != nil {
			return account.Transaction{}, fmt.Errorf("invalid amount: %w", err)
		}
		tx.Amount = amount
	}

	return tx, nil
}
