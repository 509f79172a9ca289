package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"moneynotes/internal/amqp"
	"moneynotes/internal/core"
	"moneynotes/internal/log"
	"moneynotes/internal/store"
)

var (
	// ErrPositionOutOfRange reports a display position that addresses no transaction.
	ErrPositionOutOfRange = store.ErrPositionOutOfRange
	// ErrTransactionNotFound reports an unknown transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// EventPublisher receives ledger events after successful mutations.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// Snapshot is a consistent view of the ledger at one revision.
type Snapshot struct {
	Transactions []core.Transaction // insertion order
	Revision     uint64
}

// LedgerService owns the ledger of one session. Mutations are serialised
// and each successful one bumps the revision.
type LedgerService struct {
	mu        sync.Mutex
	store     store.LedgerStore
	publisher EventPublisher
	logger    *log.Logger
	events    *log.StructuredLogger
	revision  atomic.Uint64
}

// NewLedgerService wires a ledger over a store. publisher may be nil.
func NewLedgerService(s store.LedgerStore, publisher EventPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		store:     s,
		publisher: publisher,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// AddFromInput parses raw form input and adds the resulting transaction.
func (s *LedgerService) AddFromInput(ctx context.Context, typeText, category, amountText string) (core.Transaction, error) {
	t, err := core.ParseTransactionType(typeText)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	amount, err := core.ParseAmount(amountText)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	return s.Add(ctx, t, category, amount)
}

// Add validates and appends a new transaction. On error the ledger is unchanged.
func (s *LedgerService) Add(ctx context.Context, t core.TransactionType, category string, amount core.Money) (core.Transaction, error) {
	tx, err := core.NewTransaction(t, category, amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	s.mu.Lock()
	ref, err := s.store.Append(ctx, tx)
	if err != nil {
		s.mu.Unlock()
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	rev := s.revision.Add(1)
	s.mu.Unlock()

	s.events.LogTransactionAdded(ctx, tx.ID.String(), tx.Type.String(), tx.Category, tx.Amount.String(), ref, rev)
	s.publish(ctx, amqp.EventTransactionAdded, tx, rev)
	return tx, nil
}

// RemoveAt removes the transaction at a most-recent-first display position.
func (s *LedgerService) RemoveAt(ctx context.Context, position int) (core.Transaction, error) {
	s.mu.Lock()
	tx, err := s.store.RemoveAt(ctx, position)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, store.ErrPositionOutOfRange) {
			return core.Transaction{}, fmt.Errorf("remove position %d: %w", position, ErrPositionOutOfRange)
		}
		return core.Transaction{}, fmt.Errorf("remove position %d: %w", position, err)
	}
	rev := s.revision.Add(1)
	s.mu.Unlock()

	s.removed(ctx, tx, rev)
	return tx, nil
}

// Remove removes the transaction with the given id.
func (s *LedgerService) Remove(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	s.mu.Lock()
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		s.mu.Unlock()
		return core.Transaction{}, fmt.Errorf("list transactions: %w", err)
	}
	var (
		tx    core.Transaction
		found bool
	)
	for _, candidate := range txs {
		if candidate.ID == id {
			tx, found = candidate, true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return core.Transaction{}, fmt.Errorf("remove %s: %w", id, ErrTransactionNotFound)
	}
	ok, err := s.store.Remove(ctx, id)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			err = ErrTransactionNotFound
		}
		return core.Transaction{}, fmt.Errorf("remove %s: %w", id, err)
	}
	rev := s.revision.Add(1)
	s.mu.Unlock()

	s.removed(ctx, tx, rev)
	return tx, nil
}

func (s *LedgerService) removed(ctx context.Context, tx core.Transaction, rev uint64) {
	s.events.LogTransactionRemoved(ctx, tx.ID.String(), tx.Type.String(), tx.Category, tx.Amount.String(), rev)
	s.publish(ctx, amqp.EventTransactionRemoved, tx, rev)
}

// Snapshot returns the ledger contents together with the revision they belong to.
func (s *LedgerService) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list transactions: %w", err)
	}
	return Snapshot{Transactions: txs, Revision: s.revision.Load()}, nil
}

// Transactions returns the ledger in insertion order.
func (s *LedgerService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	snap, err := s.Snapshot(ctx)
	return snap.Transactions, err
}

// History returns the ledger most recent first.
func (s *LedgerService) History(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	return core.Reversed(txs), nil
}

// ByType returns the transactions of one type in insertion order.
func (s *LedgerService) ByType(ctx context.Context, t core.TransactionType) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterByType(txs, t), nil
}

// Totals recomputes income, expense and balance from the whole ledger.
func (s *LedgerService) Totals(ctx context.Context) (core.Totals, error) {
	txs, err := s.Transactions(ctx)
	if err != nil {
		return core.Totals{}, err
	}
	return core.ComputeTotals(txs), nil
}

// Revision counts successful mutations since start.
func (s *LedgerService) Revision() uint64 {
	return s.revision.Load()
}

func (s *LedgerService) publish(ctx context.Context, event string, tx core.Transaction, rev uint64) {
	if s.publisher == nil {
		return
	}
	e := amqp.NewLedgerEvent(event, tx.ID.String(), tx.Type.String(), tx.Category, tx.Amount.String(), rev)
	if err := s.publisher.PublishLedgerEvent(ctx, e); err != nil {
		// The ledger mutation stands even when the event is lost.
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"event", event,
			log.FieldTransactionID, tx.ID.String(),
			log.FieldError, err.Error())
	}
}

// Close closes the store and the publisher when they hold resources.
func (s *LedgerService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
