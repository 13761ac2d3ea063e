package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/payment"
)

type PaymentHandler struct {
	Orchestrator *payment.Orchestrator
	Tokens       TokenVerifier
	Log          *zap.Logger
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Post("/payment/callback", h.callback)
	r.Group(func(r chi.Router) {
		r.Use(RequireToken(h.Tokens))
		r.Post("/payment/initialize", h.initialize)
		r.Get("/payment/verify/{tx_ref}", h.verify)
	})
}

type initializeReq struct {
	Amount json.RawMessage `json:"amount"`
	payment.Payer
}

func (h *PaymentHandler) initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Orchestrator.Initialize(r.Context(), payment.InitInput{
		UserID: identity(r).UserID,
		Amount: amount,
		Payer:  req.Payer,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Payment initialized successfully",
		"data":         res.Data,
		"checkout_url": res.CheckoutURL,
		"tx_ref":       res.TxRef,
	})
}

func (h *PaymentHandler) callback(w http.ResponseWriter, r *http.Request) {
	var cb payment.Callback
	if err := decodeJSON(w, r, &cb); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	report, err := h.Orchestrator.HandleCallback(r.Context(), cb)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment successful, stock updated, and cart cleared",
		"report":  report,
	})
}

// verify passes the gateway payload through untouched.
func (h *PaymentHandler) verify(w http.ResponseWriter, r *http.Request) {
	raw, _, err := h.Orchestrator.Verify(r.Context(), identity(r).UserID, chi.URLParam(r, "tx_ref"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	invalid := apperr.Validation("Amount is required and must be positive")
	if len(raw) == 0 {
		return decimal.Decimal{}, invalid
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invalid
	}
	return d, nil
}
