package txlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"acquisim/internal/model"
)

// Log is the append-only record of every money-movement event. Ids are
// monotonically increasing and never reused; records are never deleted,
// so the log doubles as the audit trail and the idempotency source.
type Log struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []model.Transaction
	byOrder map[string][]uint64
	byID    map[uint64]int

	bus MessageBus
}

func New(bus MessageBus) *Log {
	if bus == nil {
		bus = NopBus{}
	}
	return &Log{
		nextID:  1,
		byOrder: make(map[string][]uint64),
		byID:    make(map[uint64]int),
		bus:     bus,
	}
}

// Append records a transaction and returns its assigned id.
func (l *Log) Append(tx model.Transaction) uint64 {
	l.mu.Lock()
	tx.ID = l.nextID
	l.nextID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status.Terminal() && tx.CompletedAt.IsZero() {
		tx.CompletedAt = time.Now().UTC()
	}
	l.byID[tx.ID] = len(l.entries)
	l.entries = append(l.entries, tx)
	if tx.OrderID != "" {
		l.byOrder[tx.OrderID] = append(l.byOrder[tx.OrderID], tx.ID)
	}
	l.mu.Unlock()

	l.publish(tx)
	return tx.ID
}

// UpdateStatus advances a transaction along the status machine:
// pending -> {authorized, failed}, authorized -> {captured, reversed}.
// Terminal statuses never regress.
func (l *Log) UpdateStatus(id uint64, status model.TransactionStatus) error {
	l.mu.Lock()
	idx, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("transaction %d: %w", id, model.ErrOrderNotFound)
	}
	current := l.entries[idx].Status
	if !validTransition(current, status) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current, status)
	}
	l.entries[idx].Status = status
	if status.Terminal() {
		l.entries[idx].CompletedAt = time.Now().UTC()
	}
	tx := l.entries[idx]
	l.mu.Unlock()

	l.publish(tx)
	return nil
}

func validTransition(from, to model.TransactionStatus) bool {
	switch from {
	case model.StatusPending:
		return to == model.StatusAuthorized || to == model.StatusFailed
	case model.StatusAuthorized:
		return to == model.StatusCaptured || to == model.StatusReversed
	}
	return false
}

// Get returns the transaction with the given id.
func (l *Log) Get(id uint64) (model.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[id]
	if !ok {
		return model.Transaction{}, false
	}
	return l.entries[idx], true
}

// FindByOrderID returns every transaction recorded under the order id,
// in append order.
func (l *Log) FindByOrderID(orderID string) []model.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.byOrder[orderID]
	out := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entries[l.byID[id]])
	}
	return out
}

// FindByAccount returns every transaction touching the account, in
// append order.
func (l *Log) FindByAccount(accountID string) []model.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.Transaction
	for _, tx := range l.entries {
		if tx.Source == accountID || tx.Destination == accountID {
			out = append(out, tx)
		}
	}
	return out
}

// All returns a copy of the full log in append order.
func (l *Log) All() []model.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Transaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// SumByKind totals the amounts of captured transactions of one kind.
func (l *Log) SumByKind(kind model.TransactionKind) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total int64
	for _, tx := range l.entries {
		if tx.Kind == kind && tx.Status == model.StatusCaptured {
			total += tx.Amount
		}
	}
	return total
}

func (l *Log) publish(tx model.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		slog.Error("txlog: failed to marshal transaction event", "id", tx.ID, "error", err)
		return
	}
	if err := l.bus.Publish(TopicTransactions, data); err != nil {
		slog.Error("txlog: failed to publish transaction event", "id", tx.ID, "error", err)
	}
}
