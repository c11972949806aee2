package bank

import (
	"context"
	"errors"
	"sync"
	"testing"

	"acquisim/internal/cards"
	"acquisim/internal/ledger"
	"acquisim/internal/model"
	"acquisim/internal/txlog"
)

type fixture struct {
	sim    *Simulator
	ledger *ledger.Store
	log    *txlog.Log
	cards  *cards.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := txlog.New(nil)
	led := ledger.New(log)
	registry := cards.NewRegistry()
	emission := NewEmissionService(led, log)
	if _, err := led.CreateAccount("store", nil); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		sim:    NewSimulator(led, log, registry, emission, "store", nil),
		ledger: led,
		log:    log,
		cards:  registry,
	}
}

// account creates an account, funds it by emission and returns a card
// token drawing on it.
func (f *fixture) account(t *testing.T, id string, funds int64) string {
	t.Helper()
	if _, err := f.ledger.CreateAccount(id, nil); err != nil {
		t.Fatal(err)
	}
	if funds > 0 {
		if _, err := f.sim.Emit(context.Background(), id, funds); err != nil {
			t.Fatal(err)
		}
	}
	token, err := f.sim.IssueToken(context.Background(), "4242424242424242", id, "")
	if err != nil {
		t.Fatal(err)
	}
	return token.ID
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	acc, err := f.ledger.GetAccount(id)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Available
}

func TestEmitThenDirectPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "a", 0)
	f.account(t, "b", 0)

	balance, err := f.sim.Emit(ctx, "a", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 1000 {
		t.Fatalf("emit returned balance %d", balance)
	}

	tx, err := f.sim.DirectPayment(ctx, "a", "b", 400)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Kind != model.KindDirectTransfer || tx.Status != model.StatusCaptured {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if got := f.balance(t, "a"); got != 600 {
		t.Errorf("balance(a): expected 600, got %d", got)
	}
	if got := f.balance(t, "b"); got != 400 {
		t.Errorf("balance(b): expected 400, got %d", got)
	}

	var kinds []model.TransactionKind
	for _, tx := range f.log.All() {
		kinds = append(kinds, tx.Kind)
	}
	if len(kinds) != 2 || kinds[0] != model.KindEmission || kinds[1] != model.KindDirectTransfer {
		t.Errorf("unexpected log trail: %v", kinds)
	}
}

func TestInitThenSplitPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 1000)
	f.account(t, "b1", 0)
	f.account(t, "b2", 0)

	payment, err := f.sim.InitPayment(ctx, "O1", 300, token)
	if err != nil {
		t.Fatal(err)
	}
	if payment.State != model.PaymentAuthorized {
		t.Fatalf("expected authorized, got %s", payment.State)
	}

	status, err := f.sim.SplitPayment(ctx, "O1", []model.SplitLeg{
		{AccountID: "b1", Amount: 200},
		{AccountID: "b2", Amount: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	if status.Payment.State != model.PaymentCaptured {
		t.Errorf("expected captured payment, got %s", status.Payment.State)
	}
	if got := f.balance(t, "b1"); got != 200 {
		t.Errorf("balance(b1): expected 200, got %d", got)
	}
	if got := f.balance(t, "b2"); got != 100 {
		t.Errorf("balance(b2): expected 100, got %d", got)
	}
	if got := f.balance(t, "payer"); got != 700 {
		t.Errorf("balance(payer): expected 700, got %d", got)
	}

	// charge + 2 split legs, all terminal.
	txs := f.log.FindByOrderID("O1")
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		if !tx.Status.Terminal() {
			t.Errorf("transaction %d not terminal: %s", tx.ID, tx.Status)
		}
	}
}

func TestSplitPayment_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 1000)
	f.account(t, "b1", 0)

	if _, err := f.sim.InitPayment(ctx, "O2", 300, token); err != nil {
		t.Fatal(err)
	}
	_, err := f.sim.SplitPayment(ctx, "O2", []model.SplitLeg{{AccountID: "b1", Amount: 299}})
	if !errors.Is(err, model.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	// No leg executed, hold untouched, payment still authorized.
	if got := f.balance(t, "b1"); got != 0 {
		t.Errorf("mismatched split credited a leg: %d", got)
	}
	acc, _ := f.ledger.GetAccount("payer")
	if acc.Held != 300 {
		t.Errorf("hold disturbed: %d", acc.Held)
	}
	status, _ := f.sim.GetStatus(ctx, "O2")
	if status.Payment.State != model.PaymentAuthorized {
		t.Errorf("payment state changed to %s", status.Payment.State)
	}
}

// A leg failing mid-fan-out stops the split but keeps earlier legs
// committed. The payment reads failed; the trail tells the caller which
// destinations got paid.
func TestSplitPayment_PartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 1000)
	f.account(t, "good", 0)

	if _, err := f.sim.InitPayment(ctx, "O3", 300, token); err != nil {
		t.Fatal(err)
	}
	status, err := f.sim.SplitPayment(ctx, "O3", []model.SplitLeg{
		{AccountID: "good", Amount: 200},
		{AccountID: "missing", Amount: 100},
	})
	if err == nil {
		t.Fatal("expected the second leg to fail")
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if got := f.balance(t, "good"); got != 200 {
		t.Errorf("committed leg rolled back: balance %d", got)
	}
	if status.Payment.State != model.PaymentFailed {
		t.Errorf("expected failed payment, got %s", status.Payment.State)
	}

	captured := 0
	for _, tx := range status.Transactions {
		if tx.Kind == model.KindSplitLeg && tx.Status == model.StatusCaptured {
			captured++
		}
	}
	if captured != 1 {
		t.Errorf("expected exactly 1 captured leg in the trail, got %d", captured)
	}
}

func TestInitPayment_IdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 1000)

	var wg sync.WaitGroup
	results := make([]model.Payment, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.sim.InitPayment(ctx, "X", 100, token)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results[1:] {
		if p.ID != results[0].ID {
			t.Fatalf("two distinct payments created for one order: %s vs %s", results[0].ID, p.ID)
		}
	}

	// Exactly one hold of 100.
	acc, _ := f.ledger.GetAccount("payer")
	if acc.Held != 100 || acc.Available != 900 {
		t.Errorf("expected one hold of 100: available=%d held=%d", acc.Available, acc.Held)
	}
}

func TestInitPayment_ValidationFailureIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 1000)

	if _, err := f.sim.InitPayment(ctx, "BAD", -5, token); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	txs := f.log.FindByOrderID("BAD")
	if len(txs) != 1 || txs[0].Status != model.StatusFailed {
		t.Fatalf("validation failure not recorded as failed transaction: %+v", txs)
	}
	status, err := f.sim.GetStatus(ctx, "BAD")
	if err != nil {
		t.Fatal(err)
	}
	if status.Payment.State != model.PaymentFailed {
		t.Errorf("expected failed payment, got %s", status.Payment.State)
	}
}

func TestInitPayment_UnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sim.InitPayment(context.Background(), "T1", 100, "ghost"); !errors.Is(err, model.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestInitPayment_RetryAfterFailureAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 50)

	// First try: not enough funds.
	if _, err := f.sim.InitPayment(ctx, "R1", 100, token); !errors.Is(err, model.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// Fund the account and retry the same order id.
	if _, err := f.sim.Emit(ctx, "payer", 100); err != nil {
		t.Fatal(err)
	}
	payment, err := f.sim.InitPayment(ctx, "R1", 100, token)
	if err != nil {
		t.Fatal(err)
	}
	if payment.State != model.PaymentAuthorized {
		t.Errorf("retry not authorized: %s", payment.State)
	}
}

func TestCaptureAndRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 500)

	if _, err := f.sim.InitPayment(ctx, "C1", 200, token); err != nil {
		t.Fatal(err)
	}
	payment, err := f.sim.Capture(ctx, "C1")
	if err != nil {
		t.Fatal(err)
	}
	if payment.State != model.PaymentCaptured {
		t.Fatalf("expected captured, got %s", payment.State)
	}
	if got := f.balance(t, "store"); got != 200 {
		t.Errorf("store balance: expected 200, got %d", got)
	}

	// Re-initiating a captured order is refused.
	if _, err := f.sim.InitPayment(ctx, "C1", 200, token); !errors.Is(err, model.ErrDuplicateOrder) {
		t.Errorf("expected ErrDuplicateOrder, got %v", err)
	}

	payment, err = f.sim.Refund(ctx, "C1")
	if err != nil {
		t.Fatal(err)
	}
	if payment.State != model.PaymentReversed {
		t.Errorf("expected reversed, got %s", payment.State)
	}
	if got := f.balance(t, "payer"); got != 500 {
		t.Errorf("refund did not restore payer: %d", got)
	}
	if got := f.balance(t, "store"); got != 0 {
		t.Errorf("refund did not drain store: %d", got)
	}
}

func TestReverse_ReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 500)

	if _, err := f.sim.InitPayment(ctx, "V1", 200, token); err != nil {
		t.Fatal(err)
	}
	payment, err := f.sim.Reverse(ctx, "V1")
	if err != nil {
		t.Fatal(err)
	}
	if payment.State != model.PaymentReversed {
		t.Fatalf("expected reversed, got %s", payment.State)
	}
	acc, _ := f.ledger.GetAccount("payer")
	if acc.Available != 500 || acc.Held != 0 {
		t.Errorf("hold not released: available=%d held=%d", acc.Available, acc.Held)
	}

	// Reversing twice is an invalid transition.
	if _, err := f.sim.Reverse(ctx, "V1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestConcurrentCaptureAndReverse_OneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 500)

	if _, err := f.sim.InitPayment(ctx, "W1", 200, token); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var captureErr, reverseErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, captureErr = f.sim.Capture(ctx, "W1")
	}()
	go func() {
		defer wg.Done()
		_, reverseErr = f.sim.Reverse(ctx, "W1")
	}()
	wg.Wait()

	if (captureErr == nil) == (reverseErr == nil) {
		t.Fatalf("expected exactly one winner: capture=%v reverse=%v", captureErr, reverseErr)
	}
	acc, _ := f.ledger.GetAccount("payer")
	if acc.Held != 0 {
		t.Errorf("hold left dangling: %d", acc.Held)
	}
	total := acc.Available + f.balance(t, "store")
	if total != 500 {
		t.Errorf("money not conserved: %d", total)
	}
}

func TestRefund_SplitCapturedRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.account(t, "payer", 500)
	f.account(t, "b1", 0)

	if _, err := f.sim.InitPayment(ctx, "S1", 100, token); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sim.SplitPayment(ctx, "S1", []model.SplitLeg{{AccountID: "b1", Amount: 100}}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sim.Refund(ctx, "S1"); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for split refund, got %v", err)
	}
}

func TestEmissionService_TotalEmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "a", 0)

	if _, err := f.sim.Emit(ctx, "a", 700); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sim.Emit(ctx, "a", 300); err != nil {
		t.Fatal(err)
	}
	if got := NewEmissionService(f.ledger, f.log).TotalEmitted(); got != 1000 {
		t.Errorf("expected total emitted 1000, got %d", got)
	}
	if _, err := f.sim.Emit(ctx, "ghost", 1); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestGetStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sim.GetStatus(context.Background(), "nope"); !errors.Is(err, model.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}
