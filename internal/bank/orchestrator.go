package bank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquisim/internal/cards"
	"acquisim/internal/ledger"
	"acquisim/internal/metrics"
	"acquisim/internal/model"
	"acquisim/internal/txlog"
)

// Simulator is the in-memory Acquirer variant. It owns no balances
// itself: it drives the payment state machine and coordinates the ledger
// store, the transaction log and the card registry.
type Simulator struct {
	ledger   *ledger.Store
	log      *txlog.Log
	cards    *cards.Registry
	emission *EmissionService
	metrics  metrics.Collector

	// storeAccountID is where plain (non-split) charges land on capture.
	storeAccountID string

	mu       sync.Mutex
	payments map[string]*paymentEntry
}

// paymentEntry couples a payment with its charge transaction. The entry
// mutex serializes lifecycle operations for one order; the simulator
// mutex guards the map and the payment snapshot itself.
type paymentEntry struct {
	mu              sync.Mutex
	payment         model.Payment
	chargeTx        uint64
	capturedToStore bool
}

var _ Acquirer = (*Simulator)(nil)

func NewSimulator(led *ledger.Store, log *txlog.Log, reg *cards.Registry,
	emission *EmissionService, storeAccountID string, m metrics.Collector) *Simulator {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	return &Simulator{
		ledger:         led,
		log:            log,
		cards:          reg,
		emission:       emission,
		metrics:        m,
		storeAccountID: storeAccountID,
		payments:       make(map[string]*paymentEntry),
	}
}

// InitPayment starts (or re-joins) the payment for an order id. Initiation
// is idempotent: while a payment for the order is in flight, a second init
// returns that payment's current state instead of charging twice. The
// check and the insert happen under one lock, so two concurrent inits
// cannot both win the creation race.
//
// A failed or reversed order may be retried with the same id; re-initiating
// a captured order fails with ErrDuplicateOrder.
func (s *Simulator) InitPayment(ctx context.Context, orderID string, amount int64, tokenID string) (model.Payment, error) {
	start := time.Now()
	if orderID == "" {
		return model.Payment{}, fmt.Errorf("%w: order id is required", model.ErrValidation)
	}

	s.mu.Lock()
	if e, ok := s.payments[orderID]; ok {
		state := e.payment.State
		switch {
		case !state.Terminal():
			p := e.payment
			s.mu.Unlock()
			slog.Info("init joined in-flight payment", "order_id", orderID, "state", p.State)
			return p, nil
		case state == model.PaymentCaptured:
			s.mu.Unlock()
			return model.Payment{}, fmt.Errorf("order %q: %w", orderID, model.ErrDuplicateOrder)
		}
		// failed or reversed: the client is retrying, start over
	}
	entry := &paymentEntry{payment: model.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Amount:    amount,
		TokenID:   tokenID,
		State:     model.PaymentReceived,
		CreatedAt: time.Now().UTC(),
	}}
	s.payments[orderID] = entry
	s.mu.Unlock()

	if amount <= 0 {
		return s.failPayment(entry, fmt.Errorf("%w: amount must be positive, got %d", model.ErrValidation, amount))
	}
	instrument, err := s.cards.Resolve(tokenID)
	if err != nil {
		return s.failPayment(entry, err)
	}
	s.setSource(entry, instrument.AccountID)
	s.setState(entry, model.PaymentValidated)

	chargeTx, err := s.ledger.Hold(instrument.AccountID, amount, orderID)
	if err != nil {
		return s.failPayment(entry, err)
	}
	if err := s.log.UpdateStatus(chargeTx, model.StatusAuthorized); err != nil {
		return model.Payment{}, err
	}

	s.mu.Lock()
	entry.chargeTx = chargeTx
	entry.payment.State = model.PaymentAuthorized
	p := entry.payment
	s.mu.Unlock()

	s.metrics.RecordPayment("init", "authorized", time.Since(start))
	slog.Info("payment authorized",
		"order_id", orderID, "amount", amount, "source", p.SourceID, "tx_id", chargeTx)
	return p, nil
}

// SplitPayment fans an authorized amount out to multiple destinations.
// Legs must sum to exactly the authorized amount or nothing executes.
// Each leg commits as its own captured transaction; a failing leg stops
// the fan-out but already-committed legs are NOT rolled back. The payment
// then reads failed while some legs read captured, and the caller has to
// inspect the transaction trail to see which destinations were credited.
func (s *Simulator) SplitPayment(ctx context.Context, orderID string, legs []model.SplitLeg) (model.PaymentStatus, error) {
	start := time.Now()
	entry, err := s.claim(orderID, model.PaymentAuthorized)
	if err != nil {
		return model.PaymentStatus{}, err
	}
	defer entry.mu.Unlock()

	if len(legs) == 0 {
		return model.PaymentStatus{}, fmt.Errorf("%w: at least one leg is required", model.ErrValidation)
	}
	var total int64
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return model.PaymentStatus{}, fmt.Errorf("%w: leg amount must be positive", model.ErrValidation)
		}
		total += leg.Amount
	}
	payment := s.snapshot(entry)
	if total != payment.Amount {
		return model.PaymentStatus{}, fmt.Errorf("%w: legs sum to %d, authorized %d",
			model.ErrAmountMismatch, total, payment.Amount)
	}

	for i, leg := range legs {
		_, err := s.ledger.CaptureTo(payment.SourceID, leg.AccountID, leg.Amount, ledger.Record{
			OrderID: orderID,
			Kind:    model.KindSplitLeg,
		})
		if err != nil {
			s.setState(entry, model.PaymentFailed)
			s.metrics.RecordPayment("split", "failed", time.Since(start))
			slog.Warn("split leg failed, committed legs stay committed",
				"order_id", orderID, "leg", i, "destination", leg.AccountID, "error", err)
			status, _ := s.GetStatus(ctx, orderID)
			return status, fmt.Errorf("split leg %d to %q: %w", i, leg.AccountID, err)
		}
	}

	if err := s.log.UpdateStatus(entry.chargeTx, model.StatusCaptured); err != nil {
		return model.PaymentStatus{}, err
	}
	s.setState(entry, model.PaymentCaptured)
	s.metrics.RecordPayment("split", "captured", time.Since(start))
	slog.Info("split payment captured", "order_id", orderID, "legs", len(legs))
	return s.GetStatus(ctx, orderID)
}

// DirectPayment moves funds account-to-account with no card or token in
// the middle. Single transaction, captured immediately.
func (s *Simulator) DirectPayment(ctx context.Context, srcID, dstID string, amount int64) (model.Transaction, error) {
	start := time.Now()
	txID, err := s.ledger.Transfer(srcID, dstID, amount, ledger.Record{
		Kind: model.KindDirectTransfer,
	})
	if err != nil {
		s.metrics.RecordPayment("direct", "failed", time.Since(start))
		return model.Transaction{}, err
	}
	s.metrics.RecordPayment("direct", "captured", time.Since(start))
	slog.Info("direct payment", "source", srcID, "destination", dstID, "amount", amount, "tx_id", txID)
	tx, _ := s.log.Get(txID)
	return tx, nil
}

// Capture converts the whole hold of an authorized payment into a credit
// on the store account.
func (s *Simulator) Capture(ctx context.Context, orderID string) (model.Payment, error) {
	start := time.Now()
	entry, err := s.claim(orderID, model.PaymentAuthorized)
	if err != nil {
		return model.Payment{}, err
	}
	defer entry.mu.Unlock()

	payment := s.snapshot(entry)
	if err := s.ledger.CaptureHold(payment.SourceID, s.storeAccountID, payment.Amount, entry.chargeTx); err != nil {
		s.metrics.RecordPayment("capture", "failed", time.Since(start))
		return model.Payment{}, err
	}
	s.mu.Lock()
	entry.payment.State = model.PaymentCaptured
	entry.capturedToStore = true
	payment = entry.payment
	s.mu.Unlock()

	s.metrics.RecordPayment("capture", "captured", time.Since(start))
	slog.Info("payment captured", "order_id", orderID, "amount", payment.Amount)
	return payment, nil
}

// Reverse backs an authorized payment's hold out entirely.
func (s *Simulator) Reverse(ctx context.Context, orderID string) (model.Payment, error) {
	start := time.Now()
	entry, err := s.claim(orderID, model.PaymentAuthorized)
	if err != nil {
		return model.Payment{}, err
	}
	defer entry.mu.Unlock()

	payment := s.snapshot(entry)
	if err := s.ledger.Release(payment.SourceID, payment.Amount, entry.chargeTx); err != nil {
		return model.Payment{}, err
	}
	s.setState(entry, model.PaymentReversed)
	s.metrics.RecordPayment("reverse", "reversed", time.Since(start))
	slog.Info("payment reversed", "order_id", orderID, "amount", payment.Amount)
	return s.snapshot(entry), nil
}

// Refund returns a captured payment's funds from the store account to the
// payer. Only payments captured whole into the store account are
// refundable here: after a split the money has fanned out to third
// parties and there is nothing in one place to give back.
func (s *Simulator) Refund(ctx context.Context, orderID string) (model.Payment, error) {
	start := time.Now()
	entry, err := s.claim(orderID, model.PaymentCaptured)
	if err != nil {
		return model.Payment{}, err
	}
	defer entry.mu.Unlock()

	if !entry.capturedToStore {
		return model.Payment{}, fmt.Errorf("order %q was split-captured: %w", orderID, model.ErrInvalidTransition)
	}
	payment := s.snapshot(entry)
	_, err = s.ledger.Transfer(s.storeAccountID, payment.SourceID, payment.Amount, ledger.Record{
		OrderID: orderID,
		Kind:    model.KindRefund,
	})
	if err != nil {
		s.metrics.RecordPayment("refund", "failed", time.Since(start))
		return model.Payment{}, err
	}
	s.setState(entry, model.PaymentReversed)
	s.metrics.RecordPayment("refund", "refunded", time.Since(start))
	slog.Info("payment refunded", "order_id", orderID, "amount", payment.Amount)
	return s.snapshot(entry), nil
}

// GetStatus returns the payment and its ordered transaction trail.
func (s *Simulator) GetStatus(ctx context.Context, orderID string) (model.PaymentStatus, error) {
	s.mu.Lock()
	entry, ok := s.payments[orderID]
	if !ok {
		s.mu.Unlock()
		return model.PaymentStatus{}, fmt.Errorf("order %q: %w", orderID, model.ErrOrderNotFound)
	}
	payment := entry.payment
	s.mu.Unlock()
	return model.PaymentStatus{
		Payment:      payment,
		Transactions: s.log.FindByOrderID(orderID),
	}, nil
}

// IssueToken tokenizes a card after checking the backing account exists.
func (s *Simulator) IssueToken(ctx context.Context, pan, accountID, idempotencyKey string) (model.CardToken, error) {
	if _, err := s.ledger.GetAccount(accountID); err != nil {
		return model.CardToken{}, err
	}
	token, err := s.cards.IssueToken(pan, accountID, idempotencyKey)
	if err != nil {
		return model.CardToken{}, err
	}
	s.metrics.RecordTokenIssued()
	return token, nil
}

// Emit injects simulated currency into an account.
func (s *Simulator) Emit(ctx context.Context, accountID string, amount int64) (int64, error) {
	balance, err := s.emission.Emit(accountID, amount)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordEmission(amount)
	return balance, nil
}

// ───── internals ─────────────────────────────────────────────────────────

// claim looks the order up and takes its entry lock, verifying the
// payment is still in the expected state afterwards. This is what makes
// two concurrent captures (or a capture racing a reverse) resolve to one
// winner and one typed error.
func (s *Simulator) claim(orderID string, want model.PaymentState) (*paymentEntry, error) {
	s.mu.Lock()
	entry, ok := s.payments[orderID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("order %q: %w", orderID, model.ErrOrderNotFound)
	}
	entry.mu.Lock()
	s.mu.Lock()
	state := entry.payment.State
	s.mu.Unlock()
	if state != want {
		entry.mu.Unlock()
		return nil, fmt.Errorf("order %q is %s, want %s: %w", orderID, state, want, model.ErrInvalidTransition)
	}
	return entry, nil
}

// failPayment records the failure in the log (auditable, not silently
// dropped) and moves the payment to its terminal failed state.
func (s *Simulator) failPayment(entry *paymentEntry, cause error) (model.Payment, error) {
	s.mu.Lock()
	entry.payment.State = model.PaymentFailed
	p := entry.payment
	s.mu.Unlock()

	s.log.Append(model.Transaction{
		OrderID: p.OrderID,
		Kind:    model.KindCharge,
		Amount:  p.Amount,
		Source:  p.SourceID,
		Status:  model.StatusFailed,
	})
	s.metrics.RecordPayment("init", "failed", 0)
	slog.Warn("payment failed", "order_id", p.OrderID, "error", cause)
	return p, cause
}

func (s *Simulator) setState(entry *paymentEntry, state model.PaymentState) {
	s.mu.Lock()
	entry.payment.State = state
	s.mu.Unlock()
}

func (s *Simulator) setSource(entry *paymentEntry, accountID string) {
	s.mu.Lock()
	entry.payment.SourceID = accountID
	s.mu.Unlock()
}

func (s *Simulator) snapshot(entry *paymentEntry) model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entry.payment
}
