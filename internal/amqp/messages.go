package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ledger event names carried in LedgerEvent.Event
const (
	EventTransactionAdded   = "transaction.added"
	EventTransactionRemoved = "transaction.removed"
)

// LedgerEvent is published after every successful ledger mutation.
// Amount is the decimal string of the transaction amount.
type LedgerEvent struct {
	Event     string    `json:"event"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Amount    string    `json:"amount"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time
func NewLedgerEvent(event, id, txType, category, amount string, revision uint64) *LedgerEvent {
	return &LedgerEvent{
		Event:     event,
		ID:        id,
		Type:      txType,
		Category:  category,
		Amount:    amount,
		Revision:  revision,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown event names
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Event {
	case EventTransactionAdded, EventTransactionRemoved:
	default:
		return nil, fmt.Errorf("unknown ledger event %q", e.Event)
	}
	return &e, nil
}
