package bank

import (
	"context"

	"acquisim/internal/model"
)

// Acquirer is the capability set of a payment backend. All transport
// layers depend on this interface, not on the concrete simulator, so a
// real-gateway adapter can be swapped in at construction time.
type Acquirer interface {
	InitPayment(ctx context.Context, orderID string, amount int64, tokenID string) (model.Payment, error)
	SplitPayment(ctx context.Context, orderID string, legs []model.SplitLeg) (model.PaymentStatus, error)
	DirectPayment(ctx context.Context, srcID, dstID string, amount int64) (model.Transaction, error)
	Capture(ctx context.Context, orderID string) (model.Payment, error)
	Reverse(ctx context.Context, orderID string) (model.Payment, error)
	Refund(ctx context.Context, orderID string) (model.Payment, error)
	GetStatus(ctx context.Context, orderID string) (model.PaymentStatus, error)
	IssueToken(ctx context.Context, pan, accountID, idempotencyKey string) (model.CardToken, error)
	Emit(ctx context.Context, accountID string, amount int64) (int64, error)
}
