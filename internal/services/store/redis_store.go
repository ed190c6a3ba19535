package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/paygate-ng/paygate/internal/models"
)

const keyPrefix = "paygate:transactions:"

type RedisTransactionStore struct {
	client *redis.Client
}

func NewRedisTransactionStore(client *redis.Client) *RedisTransactionStore {
	return &RedisTransactionStore{client: client}
}

func (s *RedisTransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("store: failed to marshal transaction %q: %w", tx.Reference, err)
	}
	if err := s.client.Set(ctx, keyPrefix+tx.Reference, data, 0).Err(); err != nil {
		return fmt.Errorf("store: failed to persist transaction %q: %w", tx.Reference, err)
	}
	return nil
}

func (s *RedisTransactionStore) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	data, err := s.client.Get(ctx, keyPrefix+reference).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load transaction %q: %w", reference, err)
	}

	var tx models.Transaction
	if err := json.Unmarshal([]byte(data), &tx); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal transaction %q: %w", reference, err)
	}
	return &tx, nil
}

func (s *RedisTransactionStore) Update(ctx context.Context, reference string, fields Update) error {
	tx, err := s.FindByReference(ctx, reference)
	if err != nil {
		return err
	}
	applyUpdate(tx, fields, time.Now().UTC())

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("store: failed to marshal transaction %q: %w", reference, err)
	}
	if err := s.client.Set(ctx, keyPrefix+reference, data, 0).Err(); err != nil {
		return fmt.Errorf("store: failed to update transaction %q: %w", reference, err)
	}
	return nil
}
