package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"moneynotes/internal/core"
	"moneynotes/internal/store"
)

// Store keeps the ledger in process memory for the lifetime of the process.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	added int
}

func New() *Store {
	return &Store{}
}

// NewWithTransactions seeds the store, skipping invalid records.
func NewWithTransactions(txs []core.Transaction) *Store {
	s := New()
	for _, tx := range txs {
		_, _ = s.Append(context.Background(), tx)
	}
	return s
}

// Append stores the transaction and returns a synthetic reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, tx)
	s.added++
	return fmt.Sprintf("mem:%d", s.added), nil
}

func (s *Store) Remove(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.items, func(tx core.Transaction) bool { return tx.ID == id })
	if i < 0 {
		return false, nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true, nil
}

func (s *Store) RemoveAt(_ context.Context, position int) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := store.DisplayToIndex(position, len(s.items))
	if !ok {
		return core.Transaction{}, store.ErrPositionOutOfRange
	}
	tx := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...), nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
