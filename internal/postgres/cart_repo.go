package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/cart"
)

type CartRepo struct{ DB *DB }

const lineColumns = `id, user_id, product_id, quantity, added_at`

func scanLine(row pgx.Row) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.AddedAt)
	return l, err
}

func (r *CartRepo) ListItems(ctx context.Context, userID int64) ([]cart.Item, error) {
	var out []cart.Item
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		rows, err := c.Query(ctx, `
			SELECT ci.id, ci.quantity, ci.added_at,
			       p.id, p.name, COALESCE(p.description, ''), p.price::text,
			       p.category, COALESCE(p.image_url, ''), p.stock_quantity
			FROM cart_items ci
			JOIN products p ON ci.product_id = p.id
			WHERE ci.user_id = $1 AND p.is_active = true
			ORDER BY ci.added_at DESC, ci.id DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				it    cart.Item
				price string
			)
			if err := rows.Scan(&it.CartItemID, &it.Quantity, &it.AddedAt,
				&it.ProductID, &it.Name, &it.Description, &price,
				&it.Category, &it.ImageURL, &it.StockQuantity); err != nil {
				return err
			}
			if it.Price, err = decimal.NewFromString(price); err != nil {
				return fmt.Errorf("product %d price %q: %w", it.ProductID, price, err)
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	return out, err
}

// AddItem locks the product row so concurrent adds for the same product see
// each other's quantity, then merges into the existing line if any.
func (r *CartRepo) AddItem(ctx context.Context, userID, productID int64, qty int) (cart.AddResult, error) {
	var res cart.AddResult
	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		var stock int
		err := tx.QueryRow(ctx, `
			SELECT name, stock_quantity FROM products
			WHERE id = $1 AND is_active = true
			FOR UPDATE`, productID).Scan(&res.ProductName, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrProductNotFound
		}
		if err != nil {
			return err
		}

		var inCart *int
		var existing int
		err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`,
			userID, productID).Scan(&existing)
		switch {
		case err == nil:
			inCart = &existing
			res.Updated = true
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		if err := cart.CheckAdd(stock, inCart, qty); err != nil {
			return err
		}

		res.Line, err = scanLine(tx.QueryRow(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING `+lineColumns, userID, productID, qty))
		return err
	})
	if err != nil {
		return cart.AddResult{}, err
	}
	return res, nil
}

func (r *CartRepo) UpdateItem(ctx context.Context, userID, lineID int64, qty int) (cart.Line, error) {
	var line cart.Line
	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		var stock int
		err := tx.QueryRow(ctx, `
			SELECT p.stock_quantity
			FROM cart_items ci
			JOIN products p ON ci.product_id = p.id
			WHERE ci.id = $1 AND ci.user_id = $2
			FOR UPDATE OF p`, lineID, userID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrLineNotFound
		}
		if err != nil {
			return err
		}
		if err := cart.CheckUpdate(stock, qty); err != nil {
			return err
		}
		line, err = scanLine(tx.QueryRow(ctx, `
			UPDATE cart_items SET quantity = $1
			WHERE id = $2 AND user_id = $3
			RETURNING `+lineColumns, qty, lineID, userID))
		return err
	})
	return line, err
}

func (r *CartRepo) RemoveItem(ctx context.Context, userID, lineID int64) (cart.Line, error) {
	var line cart.Line
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		var err error
		line, err = scanLine(c.QueryRow(ctx, `
			DELETE FROM cart_items WHERE id = $1 AND user_id = $2
			RETURNING `+lineColumns, lineID, userID))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return line, err
}

func (r *CartRepo) Clear(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		ct, err := c.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
		n = int(ct.RowsAffected())
		return err
	})
	return n, err
}
