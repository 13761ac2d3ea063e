package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID            int64           `json:"id"`
	SellerID      int64           `json:"seller_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filter narrows the customer listing. Zero values mean "no constraint".
type Filter struct {
	Categories []string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Search     string
}

type AdminFilter struct {
	Search   string
	Category string
}

// ProductInput is a validated create/update payload.
type ProductInput struct {
	SellerID      int64
	Name          string
	Description   string
	Price         decimal.Decimal
	Category      string
	ImageURL      string
	StockQuantity int
	IsActive      bool
}

type Store interface {
	ListProducts(ctx context.Context, f Filter) ([]Product, error)
	ListAllProducts(ctx context.Context, f AdminFilter) ([]Product, error)
	// GetActiveProduct returns ErrNotFound for missing or inactive products.
	GetActiveProduct(ctx context.Context, id int64) (Product, error)
	Categories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error)
	DeactivateProduct(ctx context.Context, id int64) (Product, error)
	// DecrementStock subtracts qty unconditionally; stock may go negative.
	DecrementStock(ctx context.Context, id int64, qty int) (Product, error)
}

// Cache holds the categories list between catalog writes.
type Cache interface {
	GetCategories(ctx context.Context) ([]string, bool, error)
	SetCategories(ctx context.Context, categories []string) error
	InvalidateCategories(ctx context.Context) error
}
