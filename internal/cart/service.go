package cart

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

func (s *Service) List(ctx context.Context, userID int64) (View, error) {
	items, err := s.store.ListItems(ctx, userID)
	if err != nil {
		return View{}, apperr.Internal("Failed to fetch cart", err)
	}
	if items == nil {
		items = []Item{}
	}
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return View{Items: items, TotalItems: total}, nil
}

func (s *Service) Add(ctx context.Context, userID, productID int64, qty int) (AddResult, error) {
	if productID <= 0 {
		return AddResult{}, apperr.Validation("Product ID is required")
	}
	if qty < 1 {
		return AddResult{}, apperr.Validation("Quantity must be at least 1")
	}
	res, err := s.store.AddItem(ctx, userID, productID, qty)
	if err != nil {
		return AddResult{}, s.mapErr(err, "Failed to add item to cart")
	}
	s.log.Debug("cart line added",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", res.Line.Quantity),
		zap.Bool("merged", res.Updated))
	return res, nil
}

func (s *Service) Update(ctx context.Context, userID, lineID int64, qty int) (Line, error) {
	if lineID <= 0 {
		return Line{}, apperr.Validation("Invalid cart item ID")
	}
	if qty < 1 {
		return Line{}, apperr.Validation("Quantity must be at least 1")
	}
	line, err := s.store.UpdateItem(ctx, userID, lineID, qty)
	if err != nil {
		return Line{}, s.mapErr(err, "Failed to update cart item")
	}
	return line, nil
}

func (s *Service) Remove(ctx context.Context, userID, lineID int64) (Line, error) {
	if lineID <= 0 {
		return Line{}, apperr.Validation("Invalid cart item ID")
	}
	line, err := s.store.RemoveItem(ctx, userID, lineID)
	if err != nil {
		return Line{}, s.mapErr(err, "Failed to remove item from cart")
	}
	return line, nil
}

func (s *Service) Clear(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.Clear(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("Failed to clear cart", err)
	}
	return n, nil
}

func (s *Service) mapErr(err error, msg string) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return apperr.NotFound("Product not found or inactive")
	case errors.Is(err, ErrLineNotFound):
		return apperr.NotFound("Cart item not found")
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(msg, err)
}
