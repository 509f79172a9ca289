package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	// Transaction is an immutable ledger record. ID is assigned at creation
	// and is the only identity used for deletion.
	Transaction struct {
		ID        uuid.UUID       `json:"id"`
		Type      TransactionType `json:"type"`
		Category  string          `json:"category"` // Free display label, never normalized
		Amount    Money           `json:"amount"`
		CreatedAt time.Time       `json:"created_at"`
	}
)

var (
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
)

// TransactionTypes lists the closed set of types in display order.
func TransactionTypes() []TransactionType {
	return []TransactionType{Income, Expense}
}

// ParseTransactionType accepts "income"/"expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Label returns the capitalized display name.
func (t TransactionType) Label() string {
	switch t {
	case Income:
		return "Income"
	case Expense:
		return "Expense"
	default:
		return string(t)
	}
}

func (t TransactionType) String() string {
	return string(t)
}

// NewTransaction validates the inputs and builds a record with a fresh ID.
func NewTransaction(t TransactionType, category string, amount Money) (Transaction, error) {
	tx := Transaction{
		ID:        uuid.New(),
		Type:      t,
		Category:  category,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (tx Transaction) Validate() error {
	if !tx.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(tx.Category) == "" {
		return ErrEmptyCategory
	}
	if err := tx.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// FilterByType returns the transactions of type t, keeping insertion order.
func FilterByType(txs []Transaction, t TransactionType) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}

// Reversed returns a copy of txs in most-recent-first order.
func Reversed(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = tx
	}
	return out
}
