package postgres

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/universal-market/internal/catalog"
)

const productColumns = `id, COALESCE(seller_id, 0), name, COALESCE(description, ''), price::text,
	category, COALESCE(image_url, ''), stock_quantity, is_active, created_at`

// buildProductQuery renders the customer listing with numbered placeholders.
func buildProductQuery(f catalog.Filter) (string, []any) {
	var (
		where = []string{"is_active = true"}
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Categories) > 0 {
		where = append(where, "category = ANY("+next(f.Categories)+")")
	}
	if f.MinPrice != nil {
		where = append(where, "price >= "+next(f.MinPrice.String())+"::numeric")
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= "+next(f.MaxPrice.String())+"::numeric")
	}
	if f.Search != "" {
		p := next("%" + f.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}

	q := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	return q, args
}

// buildAdminProductQuery lists products regardless of is_active.
func buildAdminProductQuery(f catalog.AdminFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	return q + ` ORDER BY created_at DESC, id DESC`, args
}
