package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/catalog"
)

type CatalogRepo struct{ DB *DB }

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p     catalog.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &price,
		&p.Category, &p.ImageURL, &p.StockQuantity, &p.IsActive, &p.CreatedAt); err != nil {
		return catalog.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %d price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return p, nil
}

func (r *CatalogRepo) list(ctx context.Context, q string, args []any) ([]catalog.Product, error) {
	var out []catalog.Product
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		rows, err := c.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (r *CatalogRepo) ListProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error) {
	q, args := buildProductQuery(f)
	return r.list(ctx, q, args)
}

func (r *CatalogRepo) ListAllProducts(ctx context.Context, f catalog.AdminFilter) ([]catalog.Product, error) {
	q, args := buildAdminProductQuery(f)
	return r.list(ctx, q, args)
}

func (r *CatalogRepo) one(ctx context.Context, q string, args ...any) (catalog.Product, error) {
	var p catalog.Product
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		var err error
		p, err = scanProduct(c.QueryRow(ctx, q, args...))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

func (r *CatalogRepo) GetActiveProduct(ctx context.Context, id int64) (catalog.Product, error) {
	return r.one(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND is_active = true`, id)
}

func (r *CatalogRepo) Categories(ctx context.Context) ([]string, error) {
	var out []string
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		rows, err := c.Query(ctx, `SELECT DISTINCT category FROM products WHERE is_active = true ORDER BY category`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return out, err
}

func (r *CatalogRepo) CreateProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, error) {
	return r.one(ctx, `
		INSERT INTO products (seller_id, name, description, price, category, image_url, stock_quantity, is_active)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		RETURNING `+productColumns,
		in.SellerID, in.Name, in.Description, in.Price.String(), in.Category, in.ImageURL, in.StockQuantity, in.IsActive)
}

func (r *CatalogRepo) UpdateProduct(ctx context.Context, id int64, in catalog.ProductInput) (catalog.Product, error) {
	return r.one(ctx, `
		UPDATE products
		SET name = $1, description = $2, price = $3::numeric, category = $4,
		    image_url = $5, stock_quantity = $6, is_active = $7
		WHERE id = $8
		RETURNING `+productColumns,
		in.Name, in.Description, in.Price.String(), in.Category, in.ImageURL, in.StockQuantity, in.IsActive, id)
}

func (r *CatalogRepo) DeactivateProduct(ctx context.Context, id int64) (catalog.Product, error) {
	return r.one(ctx, `UPDATE products SET is_active = false WHERE id = $1 RETURNING `+productColumns, id)
}

func (r *CatalogRepo) DecrementStock(ctx context.Context, id int64, qty int) (catalog.Product, error) {
	return r.one(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $1
		WHERE id = $2
		RETURNING `+productColumns, qty, id)
}
