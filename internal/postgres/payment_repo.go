package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/payment"
)

type PaymentRepo struct{ DB *DB }

func (r *PaymentRepo) CartTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total string
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.QueryRow(ctx, `
			SELECT COALESCE(SUM(p.price * ci.quantity), 0)::text
			FROM cart_items ci
			JOIN products p ON ci.product_id = p.id
			WHERE ci.user_id = $1 AND p.is_active = true`, userID).Scan(&total)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

func (r *PaymentRepo) CreateAttempt(ctx context.Context, a payment.Attempt) error {
	return r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		_, err := c.Exec(ctx, `
			INSERT INTO payment_attempts (tx_ref, user_id, amount, currency, cart_total, status)
			VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6)`,
			a.TxRef, a.UserID, a.Amount.String(), a.Currency, a.CartTotal.String(), string(a.Status))
		return err
	})
}

func (r *PaymentRepo) GetAttempt(ctx context.Context, txRef string) (payment.Attempt, error) {
	var (
		a                 payment.Attempt
		amount, cartTotal string
		status            string
	)
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.QueryRow(ctx, `
			SELECT tx_ref, user_id, amount::text, currency, cart_total::text, status,
			       gateway_ref, created_at, reconciled_at
			FROM payment_attempts WHERE tx_ref = $1`, txRef).
			Scan(&a.TxRef, &a.UserID, &amount, &a.Currency, &cartTotal, &status,
				&a.GatewayRef, &a.CreatedAt, &a.ReconciledAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Attempt{}, payment.ErrAttemptNotFound
	}
	if err != nil {
		return payment.Attempt{}, err
	}
	a.Status = payment.Status(status)
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return payment.Attempt{}, err
	}
	if a.CartTotal, err = decimal.NewFromString(cartTotal); err != nil {
		return payment.Attempt{}, err
	}
	return a, nil
}

// MarkFailed only moves attempts that are still initialized; see payment.CanTransition.
func (r *PaymentRepo) MarkFailed(ctx context.Context, txRef, gatewayRef string) error {
	return r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		ct, err := c.Exec(ctx, `
			UPDATE payment_attempts
			SET status = 'failed', gateway_ref = COALESCE(NULLIF($2, ''), gateway_ref)
			WHERE tx_ref = $1 AND status = 'initialized'`, txRef, gatewayRef)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return payment.ErrAttemptNotFound
		}
		return nil
	})
}

type cartLine struct {
	productID int64
	qty       int
}

// Reconcile claims the attempt and applies the cart in one transaction. Each
// stock decrement runs in its own savepoint so one bad line cannot undo the
// others. A concurrent second claim blocks on the attempt row and then sees
// reconciled_at set.
func (r *PaymentRepo) Reconcile(ctx context.Context, txRef string, userID int64, gatewayRef string) (payment.ReconcileReport, error) {
	report := payment.ReconcileReport{TxRef: txRef, UserID: userID, Lines: []payment.LineResult{}}

	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payment_attempts (tx_ref, user_id, status)
			VALUES ($1, $2, 'initialized')
			ON CONFLICT (tx_ref) DO NOTHING`, txRef, userID); err != nil {
			return fmt.Errorf("upsert attempt: %w", err)
		}

		ct, err := tx.Exec(ctx, `
			UPDATE payment_attempts
			SET status = 'reconciled', reconciled_at = now(),
			    gateway_ref = COALESCE(NULLIF($2, ''), gateway_ref)
			WHERE tx_ref = $1 AND reconciled_at IS NULL`, txRef, gatewayRef)
		if err != nil {
			return fmt.Errorf("claim attempt: %w", err)
		}
		if ct.RowsAffected() == 0 {
			report.AlreadyReconciled = true
			return nil
		}

		rows, err := tx.Query(ctx, `
			SELECT product_id, quantity FROM cart_items
			WHERE user_id = $1 ORDER BY id
			FOR UPDATE`, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cartLine, error) {
			var l cartLine
			err := row.Scan(&l.productID, &l.qty)
			return l, err
		})
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		for _, l := range lines {
			report.Lines = append(report.Lines, decrementInSavepoint(ctx, tx, l))
		}

		ct, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		report.ItemsCleared = int(ct.RowsAffected())
		return nil
	})
	if err != nil {
		return payment.ReconcileReport{}, err
	}
	return report, nil
}

func decrementInSavepoint(ctx context.Context, tx pgx.Tx, l cartLine) payment.LineResult {
	res := payment.LineResult{ProductID: l.productID, Quantity: l.qty}

	sp, err := tx.Begin(ctx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	var remaining int
	err = sp.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $1
		WHERE id = $2
		RETURNING stock_quantity`, l.qty, l.productID).Scan(&remaining)
	if err != nil {
		_ = sp.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Error = "product not found"
		} else {
			res.Error = err.Error()
		}
		return res
	}
	if err := sp.Commit(ctx); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Applied = true
	return res
}
