package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneynotes/internal/core"
	"moneynotes/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the ledger in a named in-memory SQLite database.
// The database lives only as long as the repository: nothing touches disk.
type SQLiteRepository struct {
	mu      sync.Mutex
	db      *sql.DB
	queries *Queries
	name    string
}

// MemoryDSN builds the URI of a shared-cache in-memory database.
func MemoryDSN(name string) string {
	return "file:" + url.PathEscape(name) + "?mode=memory&cache=shared"
}

func NewSQLiteRepository(name string) (*SQLiteRepository, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("sqlite database name is empty")
	}

	db, err := sql.Open("sqlite", MemoryDSN(name))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single long-lived connection keeps the in-memory database alive and
	// serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		name:    name,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements store.TransactionWriter
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:        tx.ID.String(),
		Type:      tx.Type.String(),
		Category:  tx.Category,
		Amount:    tx.Amount.String(),
		CreatedAt: tx.CreatedAt.UnixNano(),
	})
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"seq", row.Seq,
		"id", row.ID,
		"type", row.Type,
		"amount", row.Amount)

	return strconv.FormatInt(row.Seq, 10), nil
}

// Remove implements store.TransactionRemover
func (r *SQLiteRepository) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.queries.DeleteTransactionByID(ctx, id.String())
	if err != nil {
		return false, fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return n > 0, nil
}

// RemoveAt implements store.TransactionRemover
func (r *SQLiteRepository) RemoveAt(ctx context.Context, position int) (core.Transaction, error) {
	if position < 0 {
		return core.Transaction{}, store.ErrPositionOutOfRange
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	q := r.queries.WithTx(sqlTx)
	row, err := q.GetTransactionAtDisplayPosition(ctx, int64(position))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrPositionOutOfRange
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction at position %d: %w", position, err)
	}
	if err := q.DeleteTransactionBySeq(ctx, row.Seq); err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction seq %d: %w", row.Seq, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}

	return toCore(row)
}

// ListTransactions implements store.TransactionLister
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := toCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Count returns the number of stored transactions.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.queries.CountTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func toCore(row Transaction) (core.Transaction, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse id of seq %d: %w", row.Seq, err)
	}
	tt, err := core.ParseTransactionType(row.Type)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse type of seq %d: %w", row.Seq, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount of seq %d: %w", row.Seq, err)
	}
	return core.Transaction{
		ID:        id,
		Type:      tt,
		Category:  row.Category,
		Amount:    core.Money{Decimal: amount},
		CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
	}, nil
}
