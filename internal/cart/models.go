package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found or inactive")
	ErrLineNotFound    = errors.New("cart item not found")
)

// Line is a stored cart row.
type Line struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// Item is a cart line joined with its product, as listed to the owner.
type Item struct {
	CartItemID    int64           `json:"cart_item_id"`
	Quantity      int             `json:"quantity"`
	AddedAt       time.Time       `json:"added_at"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
}

type View struct {
	Items      []Item `json:"cart"`
	TotalItems int    `json:"totalItems"`
}

type AddResult struct {
	Line        Line
	Updated     bool
	ProductName string
}

// Store persists cart lines. AddItem and UpdateItem must run the stock checks
// in this package against a locked product row.
type Store interface {
	ListItems(ctx context.Context, userID int64) ([]Item, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) (AddResult, error)
	UpdateItem(ctx context.Context, userID, lineID int64, qty int) (Line, error)
	RemoveItem(ctx context.Context, userID, lineID int64) (Line, error)
	Clear(ctx context.Context, userID int64) (int, error)
}

// Total is the sum of price*quantity over items.
func Total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
