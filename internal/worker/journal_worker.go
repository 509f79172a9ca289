package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"moneynotes/internal/amqp"
	"moneynotes/internal/cache"
	"moneynotes/internal/core"
)

// Redelivery window: only the most recent events are remembered.
const (
	seenLimit = 10000
	seenTTL   = 24 * time.Hour
)

// JournalStats is a snapshot of what the journal has seen.
type JournalStats struct {
	Added    int64
	Removed  int64
	Rejected int64
	Income   decimal.Decimal
	Expense  decimal.Decimal
	Revision uint64
}

// Balance is income minus expense over the journaled events
func (s JournalStats) Balance() decimal.Decimal {
	return s.Income.Sub(s.Expense)
}

// JournalWorker mirrors ledger events into running counters.
// Redelivered events are recognised by event name and id and counted once.
type JournalWorker struct {
	mu    sync.Mutex
	seen  *cache.LRUCache[struct{}]
	stats JournalStats
}

func NewJournalWorker() *JournalWorker {
	return newJournalWorker(seenLimit)
}

func newJournalWorker(limit int) *JournalWorker {
	return &JournalWorker{
		seen: cache.NewLRUCache[struct{}](limit, seenTTL),
		stats: JournalStats{
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		},
	}
}

// HandleLedgerEvent processes one ledger event from AMQP.
// Events with an unusable payload are logged and dropped, never retried.
func (w *JournalWorker) HandleLedgerEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	amount, err := decimal.NewFromString(e.Amount)
	if err != nil {
		w.reject(ctx, e, "invalid amount", err)
		return nil
	}
	tt, err := core.ParseTransactionType(e.Type)
	if err != nil {
		w.reject(ctx, e, "invalid type", err)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := e.Event + "/" + e.ID
	if _, dup := w.seen.Get(key); dup {
		slog.DebugContext(ctx, "Skipping duplicate ledger event", "event", e.Event, "id", e.ID)
		return nil
	}
	w.seen.Set(key, struct{}{})

	sign := decimal.NewFromInt(1)
	switch e.Event {
	case amqp.EventTransactionAdded:
		w.stats.Added++
	case amqp.EventTransactionRemoved:
		w.stats.Removed++
		sign = sign.Neg()
	}
	delta := amount.Mul(sign)
	if tt == core.Income {
		w.stats.Income = w.stats.Income.Add(delta)
	} else {
		w.stats.Expense = w.stats.Expense.Add(delta)
	}
	if e.Revision > w.stats.Revision {
		w.stats.Revision = e.Revision
	}

	slog.InfoContext(ctx, "Journaled ledger event",
		"event", e.Event,
		"id", e.ID,
		"type", e.Type,
		"category", e.Category,
		"amount", e.Amount,
		"revision", e.Revision,
		"balance", w.stats.Balance().String())

	return nil
}

func (w *JournalWorker) reject(ctx context.Context, e *amqp.LedgerEvent, reason string, err error) {
	w.mu.Lock()
	w.stats.Rejected++
	w.mu.Unlock()
	slog.WarnContext(ctx, "Rejected ledger event",
		"reason", reason,
		"event", e.Event,
		"id", e.ID,
		"error", err)
}

// Stats returns a copy of the current counters
func (w *JournalWorker) Stats() JournalStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
