package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/fillmorejl/async-transaction-engine/internal/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists one row per client with the dispute history as
// JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			client_id  INTEGER PRIMARY KEY,
			available  BIGINT NOT NULL,
			held       BIGINT NOT NULL,
			locked     BOOLEAN NOT NULL,
			history    JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure accounts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, client account.ClientID) (*account.Account, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT available, held, locked, history
		FROM accounts
		WHERE client_id = $1
	`, int64(client))

	var (
		available, held int64
		locked          bool
		history         []byte
	)
	if err := row.Scan(&available, &held, &locked, &history); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load account %d: %w", client, err)
	}

	acct := account.New(client)
	acct.Available = money.Amount(available)
	acct.Held = money.Amount(held)
	acct.Locked = locked
	if err := json.Unmarshal(history, &acct.History); err != nil {
		return nil, false, fmt.Errorf("decode history for account %d: %w", client, err)
	}
	return acct, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, client account.ClientID, acct *account.Account) error {
	history, err := json.Marshal(acct.History)
	if err != nil {
		return fmt.Errorf("encode history for account %d: %w", client, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (client_id, available, held, locked, history)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE
		SET available = EXCLUDED.available,
		    held = EXCLUDED.held,
		    locked = EXCLUDED.locked,
		    history = EXCLUDED.history
	`, int64(client), int64(acct.Available), int64(acct.Held), acct.Locked, history)
	if err != nil {
		return fmt.Errorf("save account %d: %w", client, err)
	}
	return nil
}

func (s *PostgresStore) Clients(ctx context.Context) ([]account.ClientID, error) {
	rows, err := s.pool.Query(ctx, `SELECT client_id FROM accounts ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []account.ClientID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan client id: %w", err)
		}
		ids = append(ids, account.ClientID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return ids, nil
}
