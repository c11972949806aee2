package model

import "time"

// TransactionKind classifies a single money-movement event.
type TransactionKind string

const (
	KindCharge         TransactionKind = "charge"
	KindSplitLeg       TransactionKind = "split_leg"
	KindDirectTransfer TransactionKind = "direct_transfer"
	KindEmission       TransactionKind = "emission"
	KindRefund         TransactionKind = "refund"
)

// TransactionStatus is the lifecycle position of one transaction.
// Allowed transitions: pending -> {authorized, failed},
// authorized -> {captured, reversed}. Everything else is terminal.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusAuthorized TransactionStatus = "authorized"
	StatusCaptured   TransactionStatus = "captured"
	StatusFailed     TransactionStatus = "failed"
	StatusReversed   TransactionStatus = "reversed"
)

// Terminal reports whether a status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCaptured, StatusFailed, StatusReversed:
		return true
	}
	return false
}

// Transaction is one atomic money-movement event. Amounts are in minor
// units (cents/kopecks). Transactions are never deleted.
type Transaction struct {
	ID          uint64            `json:"id"`
	OrderID     string            `json:"order_id,omitempty"`
	Kind        TransactionKind   `json:"kind"`
	Amount      int64             `json:"amount"`
	Source      string            `json:"source,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt time.Time         `json:"completed_at,omitzero"`
}

// Account is a merchant's single store balance. Available may go negative
// down to -CreditLimit when a credit line is open; Held is never negative.
type Account struct {
	ID          string    `json:"id"`
	Available   int64     `json:"available_balance"`
	Held        int64     `json:"held_balance"`
	CreditLimit *int64    `json:"credit_limit,omitempty"`
	Deleted     bool      `json:"deleted,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InstrumentDescriptor is what the card registry keeps for an issued
// token: the masked card and the account the instrument draws on.
// Raw PANs are masked at issuance and never stored.
type InstrumentDescriptor struct {
	MaskedPAN string `json:"masked_pan"`
	AccountID string `json:"account_id"`
}

// CardToken is a durable alias for a payment instrument.
type CardToken struct {
	ID         string               `json:"id"`
	Instrument InstrumentDescriptor `json:"instrument"`
	Revoked    bool                 `json:"revoked,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// PaymentState is the orchestrator-level state of a payment:
// Received -> Validated -> Authorized -> {Captured | Failed} -> Reversed.
type PaymentState string

const (
	PaymentReceived   PaymentState = "received"
	PaymentValidated  PaymentState = "validated"
	PaymentAuthorized PaymentState = "authorized"
	PaymentCaptured   PaymentState = "captured"
	PaymentFailed     PaymentState = "failed"
	PaymentReversed   PaymentState = "reversed"
)

// Terminal reports whether the payment can make no further progress.
func (s PaymentState) Terminal() bool {
	switch s {
	case PaymentCaptured, PaymentFailed, PaymentReversed:
		return true
	}
	return false
}

// Payment groups the transactions sharing one order id into the
// client-visible operation.
type Payment struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	Amount    int64        `json:"amount"`
	SourceID  string       `json:"source_id"`
	TokenID   string       `json:"token_id,omitempty"`
	State     PaymentState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// SplitLeg is one destination of a split payment.
type SplitLeg struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// PaymentStatus is the answer to a status query: the payment plus its
// ordered transaction trail. With the partial-failure split policy a
// caller has to read the legs to learn which destinations were credited.
type PaymentStatus struct {
	Payment      Payment       `json:"payment"`
	Transactions []Transaction `json:"transactions"`
}
