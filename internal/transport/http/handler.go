package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"acquisim/internal/bank"
	"acquisim/internal/cards"
	"acquisim/internal/ledger"
	"acquisim/internal/model"
	"acquisim/internal/txlog"
)

// Handler exposes the payment surface under /api and the administrative
// surface under /system. The /system routes are wrapped in basic auth by
// the server.
type Handler struct {
	svc      bank.Acquirer
	accounts *ledger.Store
	registry *cards.Registry
	emission *bank.EmissionService
	log      *txlog.Log
}

func NewHandler(svc bank.Acquirer, accounts *ledger.Store, registry *cards.Registry,
	emission *bank.EmissionService, log *txlog.Log) *Handler {
	return &Handler{svc: svc, accounts: accounts, registry: registry, emission: emission, log: log}
}

// Register mounts the payment routes. System routes are mounted
// separately so the server can wrap them in auth.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/payments/init", h.InitPayment)
	mux.HandleFunc("POST /api/payments/split", h.SplitPayment)
	mux.HandleFunc("POST /api/payments/direct", h.DirectPayment)
	mux.HandleFunc("POST /api/payments/capture", h.Capture)
	mux.HandleFunc("POST /api/payments/reverse", h.Reverse)
	mux.HandleFunc("POST /api/payments/refund", h.Refund)
	mux.HandleFunc("GET /api/payments/status", h.GetStatus)
	mux.HandleFunc("POST /api/tokens", h.IssueToken)
	mux.HandleFunc("DELETE /api/tokens/{id}", h.RevokeToken)
}

// RegisterSystem mounts the administrative routes on the given mux.
func (h *Handler) RegisterSystem(mux *http.ServeMux) {
	mux.HandleFunc("GET /system/accounts", h.ListAccounts)
	mux.HandleFunc("POST /system/accounts", h.CreateAccount)
	mux.HandleFunc("DELETE /system/accounts/{id}", h.DeleteAccount)
	mux.HandleFunc("PUT /system/accounts/{id}/credit", h.SetCreditLimit)
	mux.HandleFunc("POST /system/emission", h.Emit)
	mux.HandleFunc("GET /system/emission", h.TotalEmitted)
	mux.HandleFunc("GET /system/transactions", h.ListTransactions)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ───── payment surface ───────────────────────────────────────────────────

func (h *Handler) InitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
		Amount  int64  `json:"amount"`
		TokenID string `json:"card_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	payment, err := h.svc.InitPayment(r.Context(), req.OrderID, req.Amount, req.TokenID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, payment)
}

func (h *Handler) SplitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string           `json:"order_id"`
		Legs    []model.SplitLeg `json:"legs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	status, err := h.svc.SplitPayment(r.Context(), req.OrderID, req.Legs)
	if err != nil {
		// A failed leg leaves a partial result the caller has to see.
		if status.Payment.OrderID != "" {
			h.respondJSON(w, http.StatusConflict, status)
			return
		}
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

func (h *Handler) DirectPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID      string `json:"source_id"`
		DestinationID string `json:"destination_id"`
		Amount        int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	tx, err := h.svc.DirectPayment(r.Context(), req.SourceID, req.DestinationID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tx)
}

func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Capture)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Reverse)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Refund)
}

// lifecycle handles the capture/reverse/refund requests, which all take
// just an order id and return the payment.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, orderID string) (model.Payment, error)) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	payment, err := op(r.Context(), req.OrderID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, payment)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_order_id")
		return
	}
	status, err := h.svc.GetStatus(r.Context(), orderID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardNumber     string `json:"card_number"`
		AccountID      string `json:"account_id"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	token, err := h.svc.IssueToken(r.Context(), req.CardNumber, req.AccountID, req.IdempotencyKey)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, token)
}

func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Revoke(r.PathValue("id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// ───── system surface ────────────────────────────────────────────────────

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.accounts.ListAccounts())
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		CreditLimit *int64 `json:"credit_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	acc, err := h.accounts.CreateAccount(req.ID, req.CreditLimit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, acc)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.PathValue("id")); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) SetCreditLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreditLimit *int64 `json:"credit_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.accounts.SetCreditLimit(r.PathValue("id"), req.CreditLimit); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) Emit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	balance, err := h.svc.Emit(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"new_balance": balance})
}

func (h *Handler) TotalEmitted(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]int64{"total_emitted": h.emission.TotalEmitted()})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if accountID := r.URL.Query().Get("account_id"); accountID != "" {
		h.respondJSON(w, http.StatusOK, h.log.FindByAccount(accountID))
		return
	}
	h.respondJSON(w, http.StatusOK, h.log.All())
}

// ───── helpers ───────────────────────────────────────────────────────────

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the core error taxonomy onto HTTP statuses.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrAmountMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrAccountNotFound),
		errors.Is(err, model.ErrTokenNotFound),
		errors.Is(err, model.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrDuplicateOrder),
		errors.Is(err, model.ErrAccountDeleted),
		errors.Is(err, model.ErrAccountHeldFunds):
		status = http.StatusConflict
	}
	h.respondError(w, status, err.Error())
}
