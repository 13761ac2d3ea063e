package payment

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/events"
	kafkax "github.com/ariefcatur/universal-market/internal/kafka"
)

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Options struct {
	ServiceName      string
	TxRefPrefix      string
	Currency         string
	BackendURL       string
	FrontendURL      string
	EnforceCartTotal bool
	Now              func() time.Time
}

type Orchestrator struct {
	store   Store
	gateway Gateway
	pub     Publisher
	log     *zap.Logger
	opts    Options
}

// NewOrchestrator wires the payment flow. pub may be nil, in which case no
// events are emitted.
func NewOrchestrator(store Store, gateway Gateway, pub Publisher, log *zap.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "ETB"
	}
	return &Orchestrator{store: store, gateway: gateway, pub: pub, log: log, opts: opts}
}

func (o *Orchestrator) Initialize(ctx context.Context, in InitInput) (InitResult, error) {
	if !in.Amount.IsPositive() {
		return InitResult{}, apperr.Validation("Amount is required and must be positive")
	}

	total, err := o.store.CartTotal(ctx, in.UserID)
	if err != nil {
		return InitResult{}, apperr.Internal("Failed to initialize payment", err)
	}
	if o.opts.EnforceCartTotal && !in.Amount.Equal(total) {
		return InitResult{}, apperr.Validation("Amount does not match cart total").
			With("cartTotal", total.StringFixed(2))
	}

	txRef := NewTxRef(o.opts.TxRefPrefix, in.UserID, o.opts.Now())
	err = o.store.CreateAttempt(ctx, Attempt{
		TxRef:     txRef,
		UserID:    in.UserID,
		Amount:    in.Amount,
		Currency:  o.opts.Currency,
		CartTotal: total,
		Status:    StatusInitialized,
	})
	if err != nil {
		return InitResult{}, apperr.Internal("Failed to initialize payment", err)
	}

	resp, err := o.gateway.Initialize(ctx, InitializeRequest{
		Amount:      in.Amount,
		Currency:    o.opts.Currency,
		Email:       in.Payer.Email,
		FirstName:   in.Payer.FirstName,
		LastName:    in.Payer.LastName,
		PhoneNumber: in.Payer.PhoneNumber,
		TxRef:       txRef,
		CallbackURL: o.opts.BackendURL + "/api/payment/callback",
		ReturnURL:   o.opts.FrontendURL + "/payment-success.html?tx_ref=" + txRef,
		Customization: Customization{
			Title:       "Universal Marketplace Payment",
			Description: "Payment for your order",
		},
	})
	if err != nil {
		o.log.Warn("payment initialization rejected",
			zap.String("tx_ref", txRef),
			zap.Int64("user_id", in.UserID),
			zap.Error(err))
		o.markFailed(ctx, txRef, "")
		return InitResult{}, err
	}

	o.log.Info("payment initialized",
		zap.String("tx_ref", txRef),
		zap.Int64("user_id", in.UserID),
		zap.String("amount", in.Amount.String()),
		zap.String("cart_total", total.String()))
	return InitResult{CheckoutURL: resp.CheckoutURL, TxRef: txRef, Data: resp.Data}, nil
}

func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) (ReconcileReport, error) {
	o.log.Info("payment callback received",
		zap.String("tx_ref", cb.TxRef),
		zap.String("status", cb.Status),
		zap.String("reference", cb.Reference))

	if cb.Status != "success" {
		if cb.TxRef != "" {
			o.markFailed(ctx, cb.TxRef, cb.Reference)
		}
		return ReconcileReport{}, apperr.New(apperr.KindPaymentNotSuccessful, "Payment was not successful")
	}
	userID, err := ParseUserID(cb.TxRef)
	if err != nil {
		return ReconcileReport{}, err
	}
	// The callback is unauthenticated: only tx_refs issued by Initialize
	// for the same user are reconciled.
	a, err := o.store.GetAttempt(ctx, cb.TxRef)
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		o.log.Warn("callback for unknown tx_ref", zap.String("tx_ref", cb.TxRef))
		return ReconcileReport{}, apperr.NotFound("Transaction not found")
	case err != nil:
		return ReconcileReport{}, apperr.Internal("Payment processing failed", err)
	case a.UserID != userID:
		o.log.Warn("callback tx_ref owner mismatch", zap.String("tx_ref", cb.TxRef), zap.Int64("attempt_user_id", a.UserID))
		return ReconcileReport{}, apperr.NotFound("Transaction not found")
	}
	return o.reconcile(ctx, cb.TxRef, userID, cb.Reference)
}

// Verify asks the gateway for the charge status and reconciles on success.
// The raw gateway payload is returned even when reconciliation fails; the
// report is nil unless reconciliation ran to completion.
func (o *Orchestrator) Verify(ctx context.Context, userID int64, txRef string) ([]byte, *ReconcileReport, error) {
	owner, err := ParseUserID(txRef)
	if err != nil || owner != userID {
		return nil, nil, apperr.NotFound("Transaction not found")
	}

	resp, err := o.gateway.Verify(ctx, txRef)
	if err != nil {
		return nil, nil, err
	}
	if !resp.Succeeded() {
		o.log.Info("payment not verified",
			zap.String("tx_ref", txRef),
			zap.String("status", resp.Status),
			zap.String("data_status", resp.DataStatus))
		return resp.Raw, nil, nil
	}

	report, err := o.reconcile(ctx, txRef, userID, resp.Reference)
	if err != nil {
		o.log.Error("reconciliation after verify failed", zap.String("tx_ref", txRef), zap.Error(err))
		return resp.Raw, nil, nil
	}
	return resp.Raw, &report, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, txRef string, userID int64, gatewayRef string) (ReconcileReport, error) {
	report, err := o.store.Reconcile(ctx, txRef, userID, gatewayRef)
	if err != nil {
		return ReconcileReport{}, apperr.Internal("Payment processing failed", err)
	}
	if report.AlreadyReconciled {
		o.log.Info("payment already reconciled", zap.String("tx_ref", txRef))
		return report, nil
	}

	for _, l := range report.Failed() {
		o.log.Error("stock decrement failed during reconciliation",
			zap.String("tx_ref", txRef),
			zap.Int64("product_id", l.ProductID),
			zap.Int("quantity", l.Quantity),
			zap.String("reason", l.Error))
	}
	o.log.Info("payment reconciled",
		zap.String("tx_ref", txRef),
		zap.Int64("user_id", userID),
		zap.Int("lines", len(report.Lines)),
		zap.Int("failed", len(report.Failed())),
		zap.Int("items_cleared", report.ItemsCleared))

	o.publish(report)
	return report, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, txRef, gatewayRef string) {
	err := o.store.MarkFailed(ctx, txRef, gatewayRef)
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		o.log.Debug("no open attempt to mark failed", zap.String("tx_ref", txRef))
	case err != nil:
		o.log.Warn("mark attempt failed", zap.String("tx_ref", txRef), zap.Error(err))
	}
}

func (o *Orchestrator) publish(r ReconcileReport) {
	if o.pub == nil {
		return
	}
	lines := make([]events.LineOutcome, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, events.LineOutcome{ProductID: l.ProductID, Qty: l.Quantity, Applied: l.Applied, Error: l.Error})
	}
	o.emit(events.TopicPaymentReconciled, events.EventPaymentReconciled, r.TxRef, events.PaymentReconciledPayload{
		TxRef:        r.TxRef,
		UserID:       r.UserID,
		ItemsCleared: r.ItemsCleared,
		Lines:        lines,
	})
	for _, l := range r.Failed() {
		o.emit(events.TopicReconcileLineFailed, events.EventReconcileLineFailed, r.TxRef, events.ReconcileLineFailedPayload{
			TxRef:     r.TxRef,
			UserID:    r.UserID,
			ProductID: l.ProductID,
			Qty:       l.Quantity,
			Reason:    l.Error,
		})
	}
}

func (o *Orchestrator) emit(topic, eventType, txRef string, payload any) {
	env, err := events.New(eventType, o.opts.ServiceName, txRef, payload)
	if err != nil {
		o.log.Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	o.pub.Publish(topic, events.PartitionKey(txRef), kafkax.MustMarshal(env),
		kafkago.Header{Key: "event_type", Value: []byte(eventType)})
}
