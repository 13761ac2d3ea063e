package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventPaymentReconciled   = "PaymentReconciled"
	EventReconcileLineFailed = "ReconcileLineFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // tx_ref
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a version 1 envelope with a fresh event id.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type LineOutcome struct {
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

type PaymentReconciledPayload struct {
	TxRef        string        `json:"tx_ref"`
	UserID       int64         `json:"user_id"`
	ItemsCleared int           `json:"items_cleared"`
	Lines        []LineOutcome `json:"lines"`
}

// ReconcileLineFailedPayload asks the reconciler worker to retry a stock
// decrement that failed inside the reconciliation transaction.
type ReconcileLineFailedPayload struct {
	TxRef     string `json:"tx_ref"`
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"`
}
