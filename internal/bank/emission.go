package bank

import (
	"log/slog"

	"acquisim/internal/ledger"
	"acquisim/internal/model"
	"acquisim/internal/txlog"
)

// EmissionAccountID is the reserved counterparty id on emission
// transactions. It is not a ledger account: emitted money has no
// counterpart debit anywhere.
const EmissionAccountID = "bank:emission"

// EmissionService injects simulated currency into accounts, standing in
// for the central bank when test balances need seeding or replenishing.
type EmissionService struct {
	ledger *ledger.Store
	log    *txlog.Log
}

func NewEmissionService(led *ledger.Store, log *txlog.Log) *EmissionService {
	return &EmissionService{ledger: led, log: log}
}

// Emit credits the account unconditionally and returns the new balance.
// The only failure modes are an unknown account and a non-positive amount.
func (e *EmissionService) Emit(accountID string, amount int64) (int64, error) {
	balance, txID, err := e.ledger.Credit(accountID, amount, ledger.Record{
		Kind:         model.KindEmission,
		Counterparty: EmissionAccountID,
	})
	if err != nil {
		return 0, err
	}
	slog.Info("emission", "account_id", accountID, "amount", amount, "tx_id", txID)
	return balance, nil
}

// TotalEmitted is the sum of all emission transactions, i.e. how much
// currency the simulated central bank has printed so far.
func (e *EmissionService) TotalEmitted() int64 {
	return e.log.SumByKind(model.KindEmission)
}
