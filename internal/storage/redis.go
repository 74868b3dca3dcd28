package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fillmorejl/async-transaction-engine/internal/account"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "txe:account:"

// RedisStore keeps one JSON snapshot per client under
// <prefix><client-id>.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStore) key(client account.ClientID) string {
	return s.keyPrefix + strconv.FormatUint(uint64(client), 10)
}

func (s *RedisStore) Load(ctx context.Context, client account.ClientID) (*account.Account, bool, error) {
	raw, err := s.client.Get(ctx, s.key(client)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var acct account.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, false, fmt.Errorf("decode account %d: %w", client, err)
	}
	if acct.History == nil {
		acct.History = make(map[account.TxID]account.Entry)
	}
	return &acct, true, nil
}

func (s *RedisStore) Save(ctx context.Context, client account.ClientID, acct *account.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encode account %d: %w", client, err)
	}
	if err := s.client.Set(ctx, s.key(client), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clients(ctx context.Context) ([]account.ClientID, error) {
	var (
		ids    []account.ClientID
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 512).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			id, err := strconv.ParseUint(strings.TrimPrefix(key, s.keyPrefix), 10, 16)
			if err != nil {
				continue
			}
			ids = append(ids, account.ClientID(id))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}
