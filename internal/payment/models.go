package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAttemptNotFound = errors.New("payment attempt not found")

type Attempt struct {
	TxRef        string
	UserID       int64
	Amount       decimal.Decimal
	Currency     string
	CartTotal    decimal.Decimal
	Status       Status
	GatewayRef   string
	CreatedAt    time.Time
	ReconciledAt *time.Time
}

type LineResult struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

type ReconcileReport struct {
	TxRef             string       `json:"txRef"`
	UserID            int64        `json:"userId"`
	AlreadyReconciled bool         `json:"alreadyReconciled"`
	Lines             []LineResult `json:"lines"`
	ItemsCleared      int          `json:"itemsCleared"`
}

func (r ReconcileReport) Failed() []LineResult {
	var out []LineResult
	for _, l := range r.Lines {
		if !l.Applied {
			out = append(out, l)
		}
	}
	return out
}

type Payer struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

type InitInput struct {
	UserID int64
	Amount decimal.Decimal
	Payer  Payer
}

type InitResult struct {
	CheckoutURL string          `json:"checkout_url"`
	TxRef       string          `json:"tx_ref"`
	Data        json.RawMessage `json:"data"`
}

// Callback is the gateway's server-to-server push.
type Callback struct {
	TxRef     string `json:"tx_ref"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// Store persists attempts and runs reconciliation as one unit of work.
type Store interface {
	CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	CreateAttempt(ctx context.Context, a Attempt) error
	// GetAttempt returns ErrAttemptNotFound when txRef was never initialized.
	GetAttempt(ctx context.Context, txRef string) (Attempt, error)
	// MarkFailed returns ErrAttemptNotFound when no unreconciled attempt exists.
	MarkFailed(ctx context.Context, txRef, gatewayRef string) error
	// Reconcile claims the attempt (creating it when missing), decrements stock per cart line (a failing
	// line does not abort the others) and clears the cart.
	Reconcile(ctx context.Context, txRef string, userID int64, gatewayRef string) (ReconcileReport, error)
}
