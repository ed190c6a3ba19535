package store

import (
	"context"
	"sync"
	"time"

	"github.com/paygate-ng/paygate/internal/models"
)

// MemoryTransactionStore keeps transactions in a process-local map. Used by
// tests and by deployments that run without durable transaction logging.
type MemoryTransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]models.Transaction
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{
		transactions: make(map[string]models.Transaction),
	}
}

func (s *MemoryTransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.transactions[tx.Reference] = *tx
	return nil
}

func (s *MemoryTransactionStore) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[reference]
	if !ok {
		return nil, ErrNotFound
	}
	copied := tx
	return &copied, nil
}

func (s *MemoryTransactionStore) Update(ctx context.Context, reference string, fields Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[reference]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(&tx, fields, time.Now().UTC())
	s.transactions[reference] = tx
	return nil
}

// Len reports the number of stored transactions.
func (s *MemoryTransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}
