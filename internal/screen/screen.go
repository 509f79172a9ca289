// Package screen is the event surface of the single ledger screen: input
// events come in with the current form state and the updated state comes
// back, so the whole screen can be driven without a UI.
package screen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"moneynotes/internal/core"
	"moneynotes/internal/log"
	"moneynotes/internal/services"
)

// Chart titles
const (
	ExpenseTitle = "Expenses"
	IncomeTitle  = "Income"
)

// Ledger is what the screen needs from the ledger service.
type Ledger interface {
	AddFromInput(ctx context.Context, typeText, category, amountText string) (core.Transaction, error)
	RemoveAt(ctx context.Context, position int) (core.Transaction, error)
	Remove(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	Snapshot(ctx context.Context) (services.Snapshot, error)
	Revision() uint64
}

// Form is the input state of the add-transaction form.
type Form struct {
	Type     core.TransactionType `json:"type"`
	Category string               `json:"category"`
	Amount   string               `json:"amount"`
}

// NewForm returns an empty form with Income selected.
func NewForm() Form {
	return Form{Type: core.Income}
}

// Cleared keeps the selected type and empties the text fields.
func (f Form) Cleared() Form {
	return Form{Type: f.Type}
}

// ChartView is one pie chart. Breakdown is empty when NoData is set.
type ChartView struct {
	Title     string               `json:"title"`
	Type      core.TransactionType `json:"type"`
	NoData    bool                 `json:"no_data"`
	Breakdown core.Breakdown       `json:"breakdown"`
}

// View is everything the screen displays, computed from one ledger snapshot.
type View struct {
	Totals   core.Totals        `json:"totals"`
	Expense  ChartView          `json:"expense"`
	Income   ChartView          `json:"income"`
	History  []core.Transaction `json:"history"` // most recent first
	Revision uint64             `json:"revision"`
}

type Screen struct {
	ledger Ledger
	logger *log.Logger
}

func New(ledger Ledger, logger *log.Logger) *Screen {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Screen{
		ledger: ledger,
		logger: logger.WithComponent(log.ComponentScreen),
	}
}

// OnAddTransaction submits the form. An accepted add returns the cleared
// form; a rejected one returns the form untouched together with the reason.
func (s *Screen) OnAddTransaction(ctx context.Context, form Form) (Form, error) {
	if _, err := s.ledger.AddFromInput(ctx, form.Type.String(), form.Category, form.Amount); err != nil {
		s.logger.DebugContext(ctx, "Add rejected",
			log.FieldType, form.Type.String(),
			log.FieldError, err.Error())
		return form, err
	}
	return form.Cleared(), nil
}

// OnDeleteTransaction removes the row at a display position. Positions that
// address no row are ignored and reported as false.
func (s *Screen) OnDeleteTransaction(ctx context.Context, position int) (bool, error) {
	_, err := s.ledger.RemoveAt(ctx, position)
	if errors.Is(err, services.ErrPositionOutOfRange) {
		s.logger.DebugContext(ctx, "Ignoring delete outside the history", log.FieldPosition, position)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OnDeleteTransactionByID removes a row by its stable id. Unknown ids are
// reported as false.
func (s *Screen) OnDeleteTransactionByID(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.ledger.Remove(ctx, id)
	if errors.Is(err, services.ErrTransactionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OnRenderRequest recomputes totals, both charts and the history.
func (s *Screen) OnRenderRequest(ctx context.Context) (View, error) {
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return View{}, fmt.Errorf("render: %w", err)
	}
	return BuildView(snap)
}

// Revision identifies the ledger state a View would be built from.
func (s *Screen) Revision() uint64 {
	return s.ledger.Revision()
}

// BuildView derives the screen contents from a snapshot.
func BuildView(snap services.Snapshot) (View, error) {
	expense, err := chart(snap.Transactions, core.Expense, ExpenseTitle)
	if err != nil {
		return View{}, err
	}
	income, err := chart(snap.Transactions, core.Income, IncomeTitle)
	if err != nil {
		return View{}, err
	}
	return View{
		Totals:   core.ComputeTotals(snap.Transactions),
		Expense:  expense,
		Income:   income,
		History:  core.Reversed(snap.Transactions),
		Revision: snap.Revision,
	}, nil
}

func chart(txs []core.Transaction, t core.TransactionType, title string) (ChartView, error) {
	cv := ChartView{Title: title, Type: t}
	b, err := core.AggregateType(txs, t)
	switch {
	case errors.Is(err, core.ErrNoData):
		cv.NoData = true
	case err != nil:
		return ChartView{}, fmt.Errorf("aggregate %s: %w", t, err)
	default:
		cv.Breakdown = b
	}
	return cv, nil
}
