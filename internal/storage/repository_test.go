package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"moneynotes/internal/core"
	"moneynotes/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()
	repo, err := NewSQLiteRepository(name)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func mustTx(t *testing.T, tt core.TransactionType, cat, amount string) core.Transaction {
	t.Helper()
	m, err := core.ParseAmount(amount)
	if err != nil {
		t.Fatalf("parse amount %q: %v", amount, err)
	}
	tx, err := core.NewTransaction(tt, cat, m)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func TestRepositoryRoundTripKeepsInsertionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := []core.Transaction{
		mustTx(t, core.Income, "Salary", "1500000.50"),
		mustTx(t, core.Expense, "Food", "50"),
		mustTx(t, core.Expense, " Food ", "0.01"),
	}
	for i, tx := range in {
		ref, err := repo.Append(ctx, tx)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if ref == "" {
			t.Fatalf("append %d: empty ref", i)
		}
	}

	out, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d transactions, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].Type != in[i].Type || out[i].Category != in[i].Category {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, out[i], in[i])
		}
		if !out[i].Amount.Equal(in[i].Amount) {
			t.Fatalf("row %d amount %s, want %s", i, out[i].Amount.String(), in[i].Amount.String())
		}
		if !out[i].CreatedAt.Equal(in[i].CreatedAt) {
			t.Fatalf("row %d created_at %v, want %v", i, out[i].CreatedAt, in[i].CreatedAt)
		}
	}
}

func TestRepositoryRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Append(context.Background(), core.Transaction{ID: uuid.New(), Type: core.Income, Category: "", Amount: core.NewMoney(1)}); !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
	n, err := repo.Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected empty table, n=%d err=%v", n, err)
	}
}

func TestRepositoryRemoveAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	first := mustTx(t, core.Expense, "A", "1")
	last := mustTx(t, core.Expense, "B", "2")
	for _, tx := range []core.Transaction{first, last} {
		if _, err := repo.Append(ctx, tx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.RemoveAt(ctx, 0)
	if err != nil || got.ID != last.ID {
		t.Fatalf("position 0 must remove the newest record, got %+v err=%v", got, err)
	}
	if _, err := repo.RemoveAt(ctx, 1); !errors.Is(err, store.ErrPositionOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if _, err := repo.RemoveAt(ctx, -1); !errors.Is(err, store.ErrPositionOutOfRange) {
		t.Fatalf("expected out of range for negative, got %v", err)
	}

	out, _ := repo.ListTransactions(ctx)
	if len(out) != 1 || out[0].ID != first.ID {
		t.Fatalf("unexpected remaining rows: %+v", out)
	}
}

func TestRepositoryRemoveByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tx := mustTx(t, core.Income, "Gift", "10")
	if _, err := repo.Append(ctx, tx); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := repo.Remove(ctx, uuid.New())
	if err != nil || ok {
		t.Fatalf("unknown id must be a no-op, ok=%v err=%v", ok, err)
	}
	ok, err = repo.Remove(ctx, tx.ID)
	if err != nil || !ok {
		t.Fatalf("expected removal, ok=%v err=%v", ok, err)
	}
}

func TestRepositoriesAreIsolatedByName(t *testing.T) {
	a := newTestRepo(t)
	b := newTestRepo(t)
	ctx := context.Background()
	if _, err := a.Append(ctx, mustTx(t, core.Income, "X", "1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	n, err := b.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("databases with different names must not share rows, n=%d err=%v", n, err)
	}
}

func TestNewSQLiteRepositoryRequiresName(t *testing.T) {
	if _, err := NewSQLiteRepository("  "); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
