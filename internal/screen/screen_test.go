package screen

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"moneynotes/internal/core"
	"moneynotes/internal/log"
	"moneynotes/internal/services"
	"moneynotes/internal/store/memory"
)

func newTestScreen(t *testing.T) *Screen {
	t.Helper()
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Component: log.ComponentApp, Output: &buf})
	return New(services.NewLedgerService(memory.New(), nil, logger), logger)
}

func add(t *testing.T, s *Screen, tt core.TransactionType, category, amount string) {
	t.Helper()
	if _, err := s.OnAddTransaction(context.Background(), Form{Type: tt, Category: category, Amount: amount}); err != nil {
		t.Fatalf("add %s %q %s: %v", tt, category, amount, err)
	}
}

func TestNewFormDefaultsToIncome(t *testing.T) {
	if f := NewForm(); f.Type != core.Income || f.Category != "" || f.Amount != "" {
		t.Fatalf("unexpected default form: %+v", f)
	}
}

func TestAcceptedAddClearsTextFields(t *testing.T) {
	s := newTestScreen(t)
	form := Form{Type: core.Expense, Category: "Food", Amount: "50"}

	next, err := s.OnAddTransaction(context.Background(), form)
	if err != nil {
		t.Fatalf("OnAddTransaction: %v", err)
	}
	if next != (Form{Type: core.Expense}) {
		t.Fatalf("expected cleared form keeping the type, got %+v", next)
	}
}

func TestRejectedAddKeepsForm(t *testing.T) {
	s := newTestScreen(t)
	ctx := context.Background()

	tests := []struct {
		name string
		form Form
		want error
	}{
		{"zero", Form{Type: core.Expense, Category: "Food", Amount: "0"}, core.ErrInvalidAmount},
		{"text", Form{Type: core.Expense, Category: "Food", Amount: "fifty"}, core.ErrInvalidAmount},
		{"blank category", Form{Type: core.Income, Category: "  ", Amount: "10"}, core.ErrEmptyCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := s.OnAddTransaction(ctx, tt.form)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if next != tt.form {
				t.Fatalf("rejected add must keep the form, got %+v", next)
			}
		})
	}

	view, err := s.OnRenderRequest(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(view.History) != 0 || view.Revision != 0 {
		t.Fatalf("ledger changed after rejected adds: %+v", view)
	}
}

func TestEmptyLedgerRendersNoData(t *testing.T) {
	s := newTestScreen(t)
	view, err := s.OnRenderRequest(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !view.Expense.NoData || !view.Income.NoData {
		t.Fatalf("both charts must report no data: %+v", view)
	}
	if !view.Totals.Income.IsZero() || !view.Totals.Expense.IsZero() || !view.Totals.Balance.IsZero() {
		t.Fatalf("expected zero totals, got %+v", view.Totals)
	}
	if view.Expense.Title != ExpenseTitle || view.Income.Title != IncomeTitle {
		t.Fatalf("unexpected titles: %q %q", view.Expense.Title, view.Income.Title)
	}
}

func TestRenderFoodTransportExample(t *testing.T) {
	s := newTestScreen(t)
	add(t, s, core.Expense, "Food", "50")
	add(t, s, core.Expense, "Food", "30")
	add(t, s, core.Expense, "Transport", "20")

	view, err := s.OnRenderRequest(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !view.Income.NoData {
		t.Fatalf("income chart must be empty")
	}
	got := view.Expense.Breakdown.Slices
	if len(got) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(got))
	}
	if got[0].Label != "Food" || got[0].Percent != 80 || got[1].Label != "Transport" || got[1].Percent != 20 {
		t.Fatalf("unexpected slices: %+v", got)
	}
	if view.Totals.Expense.String() != "100" || view.Totals.Balance.String() != "-100" {
		t.Fatalf("unexpected totals: %+v", view.Totals)
	}
	if view.History[0].Category != "Transport" {
		t.Fatalf("history must be most recent first, got %q", view.History[0].Category)
	}
}

func TestDeletePositionZeroRemovesLastInserted(t *testing.T) {
	s := newTestScreen(t)
	ctx := context.Background()
	add(t, s, core.Income, "First", "1")
	add(t, s, core.Income, "Last", "2")

	ok, err := s.OnDeleteTransaction(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	view, _ := s.OnRenderRequest(ctx)
	if len(view.History) != 1 || view.History[0].Category != "First" {
		t.Fatalf("unexpected history: %+v", view.History)
	}
}

func TestDeleteOutOfRangeIsNoOp(t *testing.T) {
	s := newTestScreen(t)
	ctx := context.Background()
	add(t, s, core.Income, "Only", "1")
	before := s.Revision()

	for _, pos := range []int{-1, 1, 42} {
		ok, err := s.OnDeleteTransaction(ctx, pos)
		if err != nil || ok {
			t.Fatalf("position %d: ok=%v err=%v", pos, ok, err)
		}
	}
	if s.Revision() != before {
		t.Fatalf("no-op deletes must not change the revision")
	}
}

func TestDeleteByID(t *testing.T) {
	s := newTestScreen(t)
	ctx := context.Background()
	add(t, s, core.Expense, "Rent", "400")
	view, _ := s.OnRenderRequest(ctx)
	id := view.History[0].ID

	if ok, err := s.OnDeleteTransactionByID(ctx, uuid.New()); err != nil || ok {
		t.Fatalf("unknown id: ok=%v err=%v", ok, err)
	}
	if ok, err := s.OnDeleteTransactionByID(ctx, id); err != nil || !ok {
		t.Fatalf("known id: ok=%v err=%v", ok, err)
	}
	view, _ = s.OnRenderRequest(ctx)
	if len(view.History) != 0 || !view.Expense.NoData {
		t.Fatalf("ledger should be empty: %+v", view)
	}
}

func TestBuildViewIsPure(t *testing.T) {
	tx, _ := core.NewTransaction(core.Income, "Salary", core.NewMoney(10))
	snap := services.Snapshot{Transactions: []core.Transaction{tx}, Revision: 9}

	a, err := BuildView(snap)
	if err != nil {
		t.Fatalf("BuildView: %v", err)
	}
	b, _ := BuildView(snap)
	if a.Revision != 9 || a.Income.Breakdown.Slices[0].Percent != b.Income.Breakdown.Slices[0].Percent {
		t.Fatalf("views differ: %+v vs %+v", a, b)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != tx.ID {
		t.Fatalf("BuildView must not modify the snapshot")
	}
}
