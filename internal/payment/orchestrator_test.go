package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/cart"
	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/events"
	"github.com/ariefcatur/universal-market/internal/memory"
	"github.com/ariefcatur/universal-market/internal/payment"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Initialize(ctx context.Context, req payment.InitializeRequest) (payment.InitializeResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.InitializeResponse), args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, txRef string) (payment.VerifyResponse, error) {
	args := m.Called(ctx, txRef)
	return args.Get(0).(payment.VerifyResponse), args.Error(1)
}

type published struct {
	topic string
	key   string
	env   events.Envelope
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	var env events.Envelope
	_ = json.Unmarshal(value, &env)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, key: string(key), env: env})
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, m := range f.msgs {
		out = append(out, m.topic)
	}
	return out
}

const buyer int64 = 42

type fixture struct {
	store   *memory.Store
	gateway *mockGateway
	pub     *fakePublisher
	orch    *payment.Orchestrator
	cart    *cart.Service
	catalog *catalog.Service
}

func newFixture(t *testing.T, opts payment.Options) fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutProduct(catalog.Product{ID: 1, Name: "A", Price: decimal.RequireFromString("10"), Category: "c", StockQuantity: 10, IsActive: true})
	store.PutProduct(catalog.Product{ID: 2, Name: "B", Price: decimal.RequireFromString("2.5"), Category: "c", StockQuantity: 10, IsActive: true})

	if opts.TxRefPrefix == "" {
		opts.TxRefPrefix = "chapa"
	}
	opts.Now = func() time.Time { return time.UnixMilli(1700000000000) }
	opts.ServiceName = "market-api"

	gw := &mockGateway{}
	pub := &fakePublisher{}
	return fixture{
		store:   store,
		gateway: gw,
		pub:     pub,
		orch:    payment.NewOrchestrator(store, gw, pub, nil, opts),
		cart:    cart.NewService(store, nil),
		catalog: catalog.NewService(store, nil, nil),
	}
}

func (f fixture) fillCart(t *testing.T, qtyA, qtyB int) {
	t.Helper()
	ctx := context.Background()
	_, err := f.cart.Add(ctx, buyer, 1, qtyA)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, buyer, 2, qtyB)
	require.NoError(t, err)
}

func (f fixture) openAttempt(t *testing.T, txRef string, userID int64) {
	t.Helper()
	require.NoError(t, f.store.CreateAttempt(context.Background(), payment.Attempt{
		TxRef: txRef, UserID: userID, Status: payment.StatusInitialized,
	}))
}

func (f fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestInitialize_Success(t *testing.T) {
	f := newFixture(t, payment.Options{BackendURL: "http://api", FrontendURL: "http://web"})
	f.fillCart(t, 1, 2)

	f.gateway.On("Initialize", mock.Anything, mock.MatchedBy(func(r payment.InitializeRequest) bool {
		return r.TxRef == "chapa-42-1700000000000" &&
			r.Currency == "ETB" &&
			r.CallbackURL == "http://api/api/payment/callback" &&
			r.ReturnURL == "http://web/payment-success.html?tx_ref=chapa-42-1700000000000" &&
			r.Amount.Equal(decimal.RequireFromString("15"))
	})).Return(payment.InitializeResponse{
		Status:      "success",
		CheckoutURL: "https://checkout.chapa.co/abc",
		Data:        json.RawMessage(`{"checkout_url":"https://checkout.chapa.co/abc"}`),
	}, nil)

	res, err := f.orch.Initialize(context.Background(), payment.InitInput{
		UserID: buyer,
		Amount: decimal.RequireFromString("15"),
		Payer:  payment.Payer{Email: "a@b.co"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/abc", res.CheckoutURL)
	assert.Equal(t, "chapa-42-1700000000000", res.TxRef)

	a, ok := f.store.Attempt(res.TxRef)
	require.True(t, ok)
	assert.Equal(t, payment.StatusInitialized, a.Status)
	assert.True(t, decimal.RequireFromString("15").Equal(a.CartTotal))
	f.gateway.AssertExpectations(t)
}

func TestInitialize_GatewayRejects(t *testing.T) {
	f := newFixture(t, payment.Options{})
	rejected := apperr.New(apperr.KindPaymentInit, "Payment initialization failed").With("message", "invalid email")
	f.gateway.On("Initialize", mock.Anything, mock.Anything).Return(payment.InitializeResponse{Status: "failed"}, rejected)

	_, err := f.orch.Initialize(context.Background(), payment.InitInput{UserID: buyer, Amount: decimal.NewFromInt(5)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentInit, apperr.KindOf(err))

	a, ok := f.store.Attempt("chapa-42-1700000000000")
	require.True(t, ok)
	assert.Equal(t, payment.StatusFailed, a.Status)
}

func TestInitialize_AmountValidation(t *testing.T) {
	f := newFixture(t, payment.Options{EnforceCartTotal: true})
	f.fillCart(t, 1, 1)
	ctx := context.Background()

	_, err := f.orch.Initialize(ctx, payment.InitInput{UserID: buyer, Amount: decimal.Zero})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.orch.Initialize(ctx, payment.InitInput{UserID: buyer, Amount: decimal.NewFromInt(1)})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "12.50", e.Details["cartTotal"])
	f.gateway.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}

func TestHandleCallback_ReconcilesAllLines(t *testing.T) {
	f := newFixture(t, payment.Options{})
	f.fillCart(t, 2, 3)
	f.openAttempt(t, "chapa-42-1700000000000", buyer)

	report, err := f.orch.HandleCallback(context.Background(), payment.Callback{
		TxRef: "chapa-42-1700000000000", Status: "success", Reference: "REF1",
	})
	require.NoError(t, err)
	assert.False(t, report.AlreadyReconciled)
	assert.Len(t, report.Lines, 2)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 2, report.ItemsCleared)

	assert.Equal(t, 8, f.stock(t, 1))
	assert.Equal(t, 7, f.stock(t, 2))

	view, err := f.cart.List(context.Background(), buyer)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, []string{events.TopicPaymentReconciled}, f.pub.topics())
}

func TestHandleCallback_FailingLineDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, payment.Options{})
	f.fillCart(t, 2, 3)
	f.store.FailDecrement(1, errors.New("disk full"))
	f.openAttempt(t, "chapa-42-1700000000000", buyer)

	report, err := f.orch.HandleCallback(context.Background(), payment.Callback{
		TxRef: "chapa-42-1700000000000", Status: "success",
	})
	require.NoError(t, err)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ProductID)
	assert.Equal(t, "disk full", failed[0].Error)

	assert.Equal(t, 10, f.stock(t, 1))
	assert.Equal(t, 7, f.stock(t, 2))
	assert.Equal(t, 2, report.ItemsCleared)

	assert.Equal(t, []string{events.TopicPaymentReconciled, events.TopicReconcileLineFailed}, f.pub.topics())
	last := f.pub.msgs[1]
	assert.Equal(t, "chapa-42-1700000000000", last.key)
	assert.Equal(t, events.EventReconcileLineFailed, last.env.EventType)
	var p events.ReconcileLineFailedPayload
	require.NoError(t, json.Unmarshal(last.env.Payload, &p))
	assert.Equal(t, int64(1), p.ProductID)
	assert.Equal(t, 2, p.Qty)
}

func TestHandleCallback_SecondReconcileIsNoop(t *testing.T) {
	f := newFixture(t, payment.Options{})
	f.fillCart(t, 2, 3)
	ctx := context.Background()
	cb := payment.Callback{TxRef: "chapa-42-1700000000000", Status: "success"}
	f.openAttempt(t, cb.TxRef, buyer)

	_, err := f.orch.HandleCallback(ctx, cb)
	require.NoError(t, err)

	// refill to prove the second call does not touch the new cart
	f.fillCart(t, 1, 1)
	report, err := f.orch.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, report.AlreadyReconciled)
	assert.Equal(t, 8, f.stock(t, 1))

	view, err := f.cart.List(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
	assert.Len(t, f.pub.topics(), 1)
}

func TestHandleCallback_Errors(t *testing.T) {
	f := newFixture(t, payment.Options{})
	ctx := context.Background()

	_, err := f.orch.HandleCallback(ctx, payment.Callback{TxRef: "chapa-42-1", Status: "failed"})
	assert.True(t, apperr.Is(err, apperr.KindPaymentNotSuccessful))

	_, err = f.orch.HandleCallback(ctx, payment.Callback{TxRef: "chapa", Status: "success"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidReference))
}

func TestHandleCallback_RejectsUnissuedTxRef(t *testing.T) {
	f := newFixture(t, payment.Options{})
	f.fillCart(t, 2, 3)
	ctx := context.Background()

	_, err := f.orch.HandleCallback(ctx, payment.Callback{TxRef: "chapa-42-1700000000000", Status: "success"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// attempt exists but was issued to another user
	f.openAttempt(t, "chapa-42-1700000000001", 7)
	_, err = f.orch.HandleCallback(ctx, payment.Callback{TxRef: "chapa-42-1700000000001", Status: "success"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	view, err := f.cart.List(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
	assert.Equal(t, 10, f.stock(t, 1))
	assert.Empty(t, f.pub.topics())
}

func TestHandleCallback_FailureMarksAttempt(t *testing.T) {
	f := newFixture(t, payment.Options{})
	ctx := context.Background()
	require.NoError(t, f.store.CreateAttempt(ctx, payment.Attempt{TxRef: "chapa-42-5", UserID: buyer, Status: payment.StatusInitialized}))

	_, err := f.orch.HandleCallback(ctx, payment.Callback{TxRef: "chapa-42-5", Status: "failed", Reference: "R"})
	require.Error(t, err)

	a, ok := f.store.Attempt("chapa-42-5")
	require.True(t, ok)
	assert.Equal(t, payment.StatusFailed, a.Status)
	assert.Equal(t, "R", a.GatewayRef)
}

func TestVerify(t *testing.T) {
	const ref = "chapa-42-1700000000000"
	raw := json.RawMessage(`{"status":"success","data":{"status":"success","reference":"R9"}}`)

	t.Run("success reconciles and returns raw payload", func(t *testing.T) {
		f := newFixture(t, payment.Options{})
		f.fillCart(t, 1, 1)
		f.gateway.On("Verify", mock.Anything, ref).Return(payment.VerifyResponse{
			Status: "success", DataStatus: "success", Reference: "R9", Raw: raw,
		}, nil)

		got, report, err := f.orch.Verify(context.Background(), buyer, ref)
		require.NoError(t, err)
		assert.JSONEq(t, string(raw), string(got))
		require.NotNil(t, report)
		assert.Equal(t, 2, report.ItemsCleared)

		a, ok := f.store.Attempt(ref)
		require.True(t, ok)
		assert.Equal(t, payment.StatusReconciled, a.Status)
		assert.Equal(t, "R9", a.GatewayRef)
	})

	t.Run("pending leaves cart alone", func(t *testing.T) {
		f := newFixture(t, payment.Options{})
		f.fillCart(t, 1, 1)
		f.gateway.On("Verify", mock.Anything, ref).Return(payment.VerifyResponse{
			Status: "success", DataStatus: "pending", Raw: json.RawMessage(`{}`),
		}, nil)

		_, report, err := f.orch.Verify(context.Background(), buyer, ref)
		require.NoError(t, err)
		assert.Nil(t, report)
		assert.Equal(t, 10, f.stock(t, 1))
	})

	t.Run("other user's reference is not found", func(t *testing.T) {
		f := newFixture(t, payment.Options{})
		_, _, err := f.orch.Verify(context.Background(), buyer+1, ref)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		f.gateway.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("gateway transport error", func(t *testing.T) {
		f := newFixture(t, payment.Options{})
		f.gateway.On("Verify", mock.Anything, ref).Return(payment.VerifyResponse{},
			apperr.Wrap(apperr.KindUpstream, "Payment gateway request failed", errors.New("timeout")))

		_, _, err := f.orch.Verify(context.Background(), buyer, ref)
		assert.True(t, apperr.Is(err, apperr.KindUpstream))
	})
}
