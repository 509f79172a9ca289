package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"moneynotes/internal/core"
)

// ErrPositionOutOfRange is returned by RemoveAt when the display position
// does not address a transaction.
var ErrPositionOutOfRange = errors.New("display position out of range")

// Ports for ledger storage adapters.
type (
	TransactionWriter interface {
		// Append adds tx at the end of the insertion order.
		Append(ctx context.Context, tx core.Transaction) (ref string, err error)
	}

	TransactionRemover interface {
		// Remove deletes the transaction with the given ID. It reports false
		// when no such transaction exists.
		Remove(ctx context.Context, id uuid.UUID) (bool, error)
		// RemoveAt deletes the transaction at a display position, where 0 is
		// the most recently added one.
		RemoveAt(ctx context.Context, position int) (core.Transaction, error)
	}

	// TransactionLister returns the ledger in insertion order.
	TransactionLister interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// LedgerStore is the full set of operations a ledger backend provides.
	LedgerStore interface {
		TransactionWriter
		TransactionRemover
		TransactionLister
	}
)

// DisplayToIndex translates a most-recent-first position into an index of
// an insertion-ordered collection of length n.
func DisplayToIndex(position, n int) (int, bool) {
	if position < 0 || position >= n {
		return 0, false
	}
	return n - 1 - position, true
}
