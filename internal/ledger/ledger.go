package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquisim/internal/model"
	"acquisim/internal/txlog"
)

// Store is the authoritative in-memory table of accounts and balances.
// Access is serialized per account: the registry mutex only guards the
// map, every balance mutation happens under that account's own lock.
// Operations touching two accounts take both locks in lexicographic id
// order, which rules out deadlock between opposite-direction transfers.
//
// Every successful mutation appends its transaction log entry before the
// account locks are dropped, so the log can never disagree with the
// balances it describes.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account

	log *txlog.Log
}

type account struct {
	mu sync.Mutex
	model.Account
}

// Record tells a mutating operation how to journal itself.
type Record struct {
	OrderID      string
	Kind         model.TransactionKind
	Counterparty string // opposite side of single-account ops (may be a reserved id)
}

func New(log *txlog.Log) *Store {
	return &Store{
		accounts: make(map[string]*account),
		log:      log,
	}
}

// ───── administrative surface ────────────────────────────────────────────

// CreateAccount registers a new account. An empty id gets a generated one.
func (s *Store) CreateAccount(id string, creditLimit *int64) (model.Account, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if creditLimit != nil && *creditLimit < 0 {
		return model.Account{}, fmt.Errorf("%w: credit limit must be >= 0", model.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[id]; exists {
		return model.Account{}, fmt.Errorf("%w: account %q already exists", model.ErrValidation, id)
	}
	acc := &account{Account: model.Account{
		ID:          id,
		CreditLimit: creditLimit,
		CreatedAt:   time.Now().UTC(),
	}}
	s.accounts[id] = acc
	return acc.Account, nil
}

// DeleteAccount soft-deletes an account. Refused while funds are held:
// an in-flight payment still owns that reservation.
func (s *Store) DeleteAccount(id string) error {
	acc, err := s.get(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.Deleted {
		return fmt.Errorf("account %q: %w", id, model.ErrAccountDeleted)
	}
	if acc.Held != 0 {
		return fmt.Errorf("account %q: %w", id, model.ErrAccountHeldFunds)
	}
	acc.Deleted = true
	return nil
}

// SetCreditLimit opens, resizes or closes (nil) an account's credit line.
// Shrinking below the current overdraft is refused.
func (s *Store) SetCreditLimit(id string, limit *int64) error {
	if limit != nil && *limit < 0 {
		return fmt.Errorf("%w: credit limit must be >= 0", model.ErrValidation)
	}
	acc, err := s.get(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := checkLive(acc); err != nil {
		return err
	}
	if acc.Available < -limitOf(limit) {
		return fmt.Errorf("%w: balance %d already below new limit", model.ErrValidation, acc.Available)
	}
	acc.CreditLimit = limit
	return nil
}

// GetAccount returns a snapshot of the account.
func (s *Store) GetAccount(id string) (model.Account, error) {
	acc, err := s.get(id)
	if err != nil {
		return model.Account{}, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.Account, nil
}

// ListAccounts returns snapshots of all accounts, deleted ones included,
// ordered by id.
func (s *Store) ListAccounts() []model.Account {
	s.mu.RLock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.GetAccount(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// ───── balance mutation ──────────────────────────────────────────────────

// Credit adds funds unconditionally and journals the movement.
func (s *Store) Credit(id string, amount int64, rec Record) (int64, uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, 0, err
	}
	acc, err := s.get(id)
	if err != nil {
		return 0, 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := checkLive(acc); err != nil {
		return 0, 0, err
	}
	acc.Available += amount
	txID := s.log.Append(model.Transaction{
		OrderID:     rec.OrderID,
		Kind:        rec.Kind,
		Amount:      amount,
		Source:      rec.Counterparty,
		Destination: id,
		Status:      model.StatusCaptured,
	})
	return acc.Available, txID, nil
}

// Debit removes funds if the balance stays within the credit line.
func (s *Store) Debit(id string, amount int64, rec Record) (int64, uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, 0, err
	}
	acc, err := s.get(id)
	if err != nil {
		return 0, 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := checkLive(acc); err != nil {
		return 0, 0, err
	}
	if acc.Available-amount < -limitOf(acc.CreditLimit) {
		return 0, 0, fmt.Errorf("account %q: %w", id, model.ErrInsufficientFunds)
	}
	acc.Available -= amount
	txID := s.log.Append(model.Transaction{
		OrderID:     rec.OrderID,
		Kind:        rec.Kind,
		Amount:      amount,
		Source:      id,
		Destination: rec.Counterparty,
		Status:      model.StatusCaptured,
	})
	return acc.Available, txID, nil
}

// Transfer atomically debits src and credits dst. No interleaving can
// observe the debited-but-not-credited intermediate state: both account
// locks are held across the whole movement and the log append.
func (s *Store) Transfer(srcID, dstID string, amount int64, rec Record) (uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	if srcID == dstID {
		return 0, fmt.Errorf("%w: transfer to self", model.ErrValidation)
	}
	src, dst, err := s.getPair(srcID, dstID)
	if err != nil {
		return 0, err
	}
	unlock := lockOrdered(src, dst)
	defer unlock()
	if err := checkLive(src); err != nil {
		return 0, err
	}
	if err := checkLive(dst); err != nil {
		return 0, err
	}
	if src.Available-amount < -limitOf(src.CreditLimit) {
		return 0, fmt.Errorf("account %q: %w", srcID, model.ErrInsufficientFunds)
	}
	src.Available -= amount
	dst.Available += amount
	txID := s.log.Append(model.Transaction{
		OrderID:     rec.OrderID,
		Kind:        rec.Kind,
		Amount:      amount,
		Source:      srcID,
		Destination: dstID,
		Status:      model.StatusCaptured,
	})
	return txID, nil
}

// ───── two-phase reservation ─────────────────────────────────────────────

// Hold reserves funds against the account and journals a pending charge.
func (s *Store) Hold(id string, amount int64, orderID string) (uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	acc, err := s.get(id)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := checkLive(acc); err != nil {
		return 0, err
	}
	if acc.Available-amount < -limitOf(acc.CreditLimit) {
		return 0, fmt.Errorf("account %q: %w", id, model.ErrInsufficientFunds)
	}
	acc.Available -= amount
	acc.Held += amount
	txID := s.log.Append(model.Transaction{
		OrderID: orderID,
		Kind:    model.KindCharge,
		Amount:  amount,
		Source:  id,
		Status:  model.StatusPending,
	})
	return txID, nil
}

// Release gives a reservation back and marks its charge reversed.
func (s *Store) Release(id string, amount int64, chargeTx uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := s.get(id)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.Held < amount {
		return fmt.Errorf("account %q: release %d exceeds held %d: %w",
			id, amount, acc.Held, model.ErrValidation)
	}
	if err := s.log.UpdateStatus(chargeTx, model.StatusReversed); err != nil {
		return err
	}
	acc.Held -= amount
	acc.Available += amount
	return nil
}

// CaptureTo converts part of src's reservation into a credit on dst and
// journals it as an independent captured transaction (a split leg).
func (s *Store) CaptureTo(srcID, dstID string, amount int64, rec Record) (uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	if srcID == dstID {
		return 0, fmt.Errorf("%w: capture to self", model.ErrValidation)
	}
	src, dst, err := s.getPair(srcID, dstID)
	if err != nil {
		return 0, err
	}
	unlock := lockOrdered(src, dst)
	defer unlock()
	if err := checkLive(dst); err != nil {
		return 0, err
	}
	if src.Held < amount {
		return 0, fmt.Errorf("account %q: capture %d exceeds held %d: %w",
			srcID, amount, src.Held, model.ErrValidation)
	}
	src.Held -= amount
	dst.Available += amount
	txID := s.log.Append(model.Transaction{
		OrderID:     rec.OrderID,
		Kind:        rec.Kind,
		Amount:      amount,
		Source:      srcID,
		Destination: dstID,
		Status:      model.StatusCaptured,
	})
	return txID, nil
}

// CaptureHold converts src's whole reservation for a charge into a credit
// on dst, completing the existing charge transaction instead of appending
// a new one.
func (s *Store) CaptureHold(srcID, dstID string, amount int64, chargeTx uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	src, dst, err := s.getPair(srcID, dstID)
	if err != nil {
		return err
	}
	unlock := lockOrdered(src, dst)
	defer unlock()
	if err := checkLive(dst); err != nil {
		return err
	}
	if src.Held < amount {
		return fmt.Errorf("account %q: capture %d exceeds held %d: %w",
			srcID, amount, src.Held, model.ErrValidation)
	}
	if err := s.log.UpdateStatus(chargeTx, model.StatusCaptured); err != nil {
		return err
	}
	src.Held -= amount
	dst.Available += amount
	return nil
}

// ───── internals ─────────────────────────────────────────────────────────

func (s *Store) get(id string) (*account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", id, model.ErrAccountNotFound)
	}
	return acc, nil
}

func (s *Store) getPair(a, b string) (*account, *account, error) {
	accA, err := s.get(a)
	if err != nil {
		return nil, nil, err
	}
	accB, err := s.get(b)
	if err != nil {
		return nil, nil, err
	}
	return accA, accB, nil
}

// lockOrdered takes both account locks in lexicographic id order.
func lockOrdered(a, b *account) func() {
	first, second := a, b
	if second.ID < first.ID {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func checkLive(acc *account) error {
	if acc.Deleted {
		return fmt.Errorf("account %q: %w", acc.ID, model.ErrAccountDeleted)
	}
	return nil
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", model.ErrValidation, amount)
	}
	return nil
}

func limitOf(limit *int64) int64 {
	if limit == nil {
		return 0
	}
	return *limit
}
