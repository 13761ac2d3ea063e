package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

// ProductRequest is the raw JSON body of a create or update call. Price is
// accepted either as a JSON number or as a numeric string.
type ProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         json.RawMessage `json:"price"`
	Category      string          `json:"category"`
	ImageURL      string          `json:"image_url"`
	StockQuantity *int            `json:"stock_quantity"`
	IsActive      *bool           `json:"is_active"`
}

// ParsePrice accepts `12.5`, `"12.5"` and rejects anything non-numeric.
func ParsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Decimal{}, fmt.Errorf("price is empty")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Decimal{}, err
		}
		s = strings.TrimSpace(str)
	}
	return decimal.NewFromString(s)
}

// ParsePriceBound parses a minPrice/maxPrice query value.
func ParsePriceBound(name, v string) (*decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("%s must be a number", name))
	}
	return &d, nil
}

// NewFilter builds a listing filter from query parameters. categories may hold
// repeated values, comma separated values, or both.
func NewFilter(categories []string, minPrice, maxPrice, search string) (Filter, error) {
	f := Filter{Search: strings.TrimSpace(search)}
	for _, c := range categories {
		for _, part := range strings.Split(c, ",") {
			if t := strings.TrimSpace(part); t != "" {
				f.Categories = append(f.Categories, t)
			}
		}
	}
	var err error
	if f.MinPrice, err = ParsePriceBound("minPrice", minPrice); err != nil {
		return Filter{}, err
	}
	if f.MaxPrice, err = ParsePriceBound("maxPrice", maxPrice); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func validate(req ProductRequest) (ProductInput, error) {
	required := apperr.Validation("Name, price, and category are required")
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Category) == "" || len(req.Price) == 0 {
		return ProductInput{}, required
	}
	price, err := ParsePrice(req.Price)
	if err != nil {
		return ProductInput{}, apperr.Validation("Price must be a valid number")
	}
	if price.IsZero() {
		return ProductInput{}, required
	}
	return ProductInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       price,
		Category:    strings.TrimSpace(req.Category),
		ImageURL:    req.ImageURL,
	}, nil
}
