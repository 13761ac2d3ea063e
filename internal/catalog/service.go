package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

// DefaultSellerID is used for products created without an authenticated caller.
const DefaultSellerID int64 = 1

type Service struct {
	store Store
	cache Cache
	log   *zap.Logger
}

func NewService(store Store, cache Cache, log *zap.Logger) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: cache, log: log}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	products, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch products", err)
	}
	return nonNil(products), nil
}

func (s *Service) ListAll(ctx context.Context, f AdminFilter) ([]Product, error) {
	products, err := s.store.ListAllProducts(ctx, f)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch products", err)
	}
	return nonNil(products), nil
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Validation("Invalid product ID")
	}
	p, err := s.store.GetActiveProduct(ctx, id)
	if err != nil {
		return Product{}, s.mapErr(err, "Failed to fetch product")
	}
	return p, nil
}

// Categories serves from cache when possible. Cache failures are logged and
// fall through to the store.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	if cached, ok, err := s.cache.GetCategories(ctx); err != nil {
		s.log.Warn("categories cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	cats, err := s.store.Categories(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch categories", err)
	}
	cats = nonNilStrings(cats)
	if err := s.cache.SetCategories(ctx, cats); err != nil {
		s.log.Warn("categories cache write failed", zap.Error(err))
	}
	return cats, nil
}

// Create validates req and inserts a product. sellerID <= 0 falls back to
// DefaultSellerID. A missing or zero stock_quantity becomes 1.
func (s *Service) Create(ctx context.Context, req ProductRequest, sellerID int64) (Product, error) {
	in, err := validate(req)
	if err != nil {
		return Product{}, err
	}
	if sellerID <= 0 {
		sellerID = DefaultSellerID
	}
	in.SellerID = sellerID
	in.StockQuantity = 1
	if req.StockQuantity != nil && *req.StockQuantity != 0 {
		in.StockQuantity = *req.StockQuantity
	}
	in.IsActive = true
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	if in.StockQuantity < 0 {
		return Product{}, apperr.Validation("Stock quantity cannot be negative")
	}

	p, err := s.store.CreateProduct(ctx, in)
	if err != nil {
		return Product{}, apperr.Internal("Failed to create product", err)
	}
	s.invalidate(ctx)
	return p, nil
}

// Update replaces the product's fields. stock_quantity and is_active default
// to 0 and true when omitted.
func (s *Service) Update(ctx context.Context, id int64, req ProductRequest) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Validation("Invalid product ID")
	}
	in, err := validate(req)
	if err != nil {
		return Product{}, err
	}
	if req.StockQuantity != nil {
		in.StockQuantity = *req.StockQuantity
	}
	in.IsActive = true
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	if in.StockQuantity < 0 {
		return Product{}, apperr.Validation("Stock quantity cannot be negative")
	}

	p, err := s.store.UpdateProduct(ctx, id, in)
	if err != nil {
		return Product{}, s.mapErr(err, "Failed to update product")
	}
	s.invalidate(ctx)
	return p, nil
}

// Delete is a soft delete.
func (s *Service) Delete(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Validation("Invalid product ID")
	}
	p, err := s.store.DeactivateProduct(ctx, id)
	if err != nil {
		return Product{}, s.mapErr(err, "Failed to delete product")
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *Service) DecrementStock(ctx context.Context, id int64, qty int) (Product, error) {
	if id <= 0 {
		return Product{}, apperr.Validation("Invalid product ID")
	}
	if qty < 1 {
		return Product{}, apperr.Validation("Quantity must be at least 1")
	}
	p, err := s.store.DecrementStock(ctx, id, qty)
	if err != nil {
		return Product{}, s.mapErr(err, "Failed to decrement stock")
	}
	if p.StockQuantity < 0 {
		s.log.Warn("stock went negative",
			zap.Int64("product_id", id),
			zap.Int("stock_quantity", p.StockQuantity))
	}
	return p, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateCategories(ctx); err != nil {
		s.log.Warn("categories cache invalidate failed", zap.Error(err))
	}
}

func (s *Service) mapErr(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("Product not found")
	}
	return apperr.Internal(msg, err)
}

func nonNil(p []Product) []Product {
	if p == nil {
		return []Product{}
	}
	return p
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type noopCache struct{}

func (noopCache) GetCategories(context.Context) ([]string, bool, error) { return nil, false, nil }
func (noopCache) SetCategories(context.Context, []string) error         { return nil }
func (noopCache) InvalidateCategories(context.Context) error            { return nil }
