package cards

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"acquisim/internal/model"
)

// Registry maps issued card tokens to payment instruments. Issuance is
// the only operation that observes raw card data; everything downstream
// sees token ids only.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*model.CardToken
	byKey  map[string]string // idempotency key -> token id
}

func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[string]*model.CardToken),
		byKey:  make(map[string]string),
	}
}

// IssueToken tokenizes a card for an account. The PAN is masked before it
// is stored. Supplying the same idempotency key again returns the token
// issued the first time instead of minting a duplicate; the check and the
// insert happen under one lock, so concurrent retries cannot both win.
func (r *Registry) IssueToken(pan, accountID, idempotencyKey string) (model.CardToken, error) {
	pan = strings.ReplaceAll(pan, " ", "")
	if len(pan) < 12 {
		return model.CardToken{}, fmt.Errorf("%w: card number too short", model.ErrValidation)
	}
	if accountID == "" {
		return model.CardToken{}, fmt.Errorf("%w: account id is required", model.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := r.byKey[idempotencyKey]; ok {
			return *r.tokens[id], nil
		}
	}

	token := &model.CardToken{
		ID: uuid.NewString(),
		Instrument: model.InstrumentDescriptor{
			MaskedPAN: maskPAN(pan),
			AccountID: accountID,
		},
		CreatedAt: time.Now().UTC(),
	}
	r.tokens[token.ID] = token
	if idempotencyKey != "" {
		r.byKey[idempotencyKey] = token.ID
	}
	return *token, nil
}

// Resolve returns the instrument behind a token. Revoked tokens do not
// resolve.
func (r *Registry) Resolve(tokenID string) (model.InstrumentDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok || token.Revoked {
		return model.InstrumentDescriptor{}, fmt.Errorf("token %q: %w", tokenID, model.ErrTokenNotFound)
	}
	return token.Instrument, nil
}

// Revoke soft-deletes a token. The id stays reserved forever.
func (r *Registry) Revoke(tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return fmt.Errorf("token %q: %w", tokenID, model.ErrTokenNotFound)
	}
	token.Revoked = true
	return nil
}

// maskPAN keeps the first six and last four digits, the scheme every
// receipt printer uses.
func maskPAN(pan string) string {
	if len(pan) <= 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}
