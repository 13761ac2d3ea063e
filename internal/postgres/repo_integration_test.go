//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/auth"
	"github.com/ariefcatur/universal-market/internal/cart"
	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/payment"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("market"),
		tcpostgres.WithUsername("market"),
		tcpostgres.WithPassword("market"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, dsn))

	db, err := Connect(ctx, dsn, Options{MaxConns: 4, MinConns: 1, AcquireTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestRepos_Integration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	users := &UserRepo{DB: db}
	products := &CatalogRepo{DB: db}
	carts := &CartRepo{DB: db}
	payments := &PaymentRepo{DB: db}

	buyer, err := users.CreateUser(ctx, auth.User{FullName: "Buyer", Email: "buyer@example.com", Phone: "1", PasswordHash: "x"})
	require.NoError(t, err)

	newProduct := func(name string, stock int) catalog.Product {
		p, err := products.CreateProduct(ctx, catalog.ProductInput{
			SellerID: 1, Name: name, Price: decimal.RequireFromString("12.50"),
			Category: "home", StockQuantity: stock, IsActive: true,
		})
		require.NoError(t, err)
		return p
	}

	t.Run("duplicate email", func(t *testing.T) {
		_, err := users.CreateUser(ctx, auth.User{FullName: "Other", Email: "buyer@example.com", Phone: "2", PasswordHash: "y"})
		assert.ErrorIs(t, err, auth.ErrEmailTaken)

		_, err = users.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("catalog listing and price round trip", func(t *testing.T) {
		p := newProduct("Desk Lamp", 3)
		assert.True(t, decimal.RequireFromString("12.5").Equal(p.Price))

		got, err := products.ListProducts(ctx, catalog.Filter{Search: "desk"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, p.ID, got[0].ID)

		cats, err := products.Categories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"home"}, cats)

		_, err = products.GetActiveProduct(ctx, 99999)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("cart merge and stock check", func(t *testing.T) {
		p := newProduct("Kettle", 5)

		_, err := carts.AddItem(ctx, buyer.ID, p.ID, 3)
		require.NoError(t, err)
		_, err = carts.AddItem(ctx, buyer.ID, p.ID, 3)
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindInsufficientStock, e.Kind)
		assert.Equal(t, 3, e.Details["currentInCart"])

		res, err := carts.AddItem(ctx, buyer.ID, p.ID, 2)
		require.NoError(t, err)
		assert.True(t, res.Updated)
		assert.Equal(t, 5, res.Line.Quantity)

		n, err := carts.Clear(ctx, buyer.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = carts.Clear(ctx, buyer.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = carts.RemoveItem(ctx, buyer.ID, res.Line.ID)
		assert.ErrorIs(t, err, cart.ErrLineNotFound)
	})

	t.Run("reconcile isolates a failing line", func(t *testing.T) {
		a := newProduct("A", 10)
		b := newProduct("B", 10)

		_, err := db.Pool().Exec(ctx, fmt.Sprintf(`
			CREATE OR REPLACE FUNCTION reject_product() RETURNS trigger AS $$
			BEGIN
				IF NEW.id = %d THEN RAISE EXCEPTION 'stock locked'; END IF;
				RETURN NEW;
			END $$ LANGUAGE plpgsql;
			CREATE TRIGGER reject_product BEFORE UPDATE ON products
			FOR EACH ROW EXECUTE FUNCTION reject_product();`, a.ID))
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = db.Pool().Exec(ctx, `DROP TRIGGER IF EXISTS reject_product ON products`)
		})

		_, err = carts.AddItem(ctx, buyer.ID, a.ID, 2)
		require.NoError(t, err)
		_, err = carts.AddItem(ctx, buyer.ID, b.ID, 3)
		require.NoError(t, err)

		txRef := payment.NewTxRef("chapa", buyer.ID, time.Now())
		require.NoError(t, payments.CreateAttempt(ctx, payment.Attempt{
			TxRef: txRef, UserID: buyer.ID, Amount: decimal.NewFromInt(62), Currency: "ETB",
			CartTotal: decimal.NewFromInt(62), Status: payment.StatusInitialized,
		}))

		report, err := payments.Reconcile(ctx, txRef, buyer.ID, "REF")
		require.NoError(t, err)
		require.Len(t, report.Lines, 2)
		failed := report.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, a.ID, failed[0].ProductID)
		assert.Equal(t, 2, report.ItemsCleared)

		gotB, err := products.GetActiveProduct(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, gotB.StockQuantity)

		again, err := payments.Reconcile(ctx, txRef, buyer.ID, "REF")
		require.NoError(t, err)
		assert.True(t, again.AlreadyReconciled)

		assert.ErrorIs(t, payments.MarkFailed(ctx, txRef, ""), payment.ErrAttemptNotFound)

		att, err := payments.GetAttempt(ctx, txRef)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusReconciled, att.Status)
		assert.Equal(t, buyer.ID, att.UserID)
		assert.Equal(t, "REF", att.GatewayRef)
		assert.True(t, decimal.NewFromInt(62).Equal(att.Amount))
		require.NotNil(t, att.ReconciledAt)

		_, err = payments.GetAttempt(ctx, "chapa-1-0")
		assert.ErrorIs(t, err, payment.ErrAttemptNotFound)
	})
}
