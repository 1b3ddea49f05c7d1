package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
)

// CartService keeps the cart snapshot that checkout is built from.
type CartService struct {
	Repo *repo.GormRepo
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	return s.Repo.GetCart(ctx, userID)
}

func (s *CartService) AddToCart(ctx context.Context, userID uuid.UUID, req transport.CartItemRequest) (*models.CartItem, error) {
	if req.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: productId required", ErrValidation)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}

	item := &models.CartItem{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Note:      req.Note,
	}
	if err := s.Repo.AddToCart(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return fmt.Errorf("%w: productId required", ErrValidation)
	}
	removed, err := s.Repo.RemoveFromCart(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: product %s not in cart", ErrNotFound, productID)
	}
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	_, err := s.Repo.DeleteCart(ctx, userID)
	return err
}

// CheckoutItems turns the stored cart into checkout lines.
func (s *CartService) CheckoutItems(ctx context.Context, userID uuid.UUID) ([]transport.CheckoutItem, error) {
	items, err := s.Repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.CheckoutItem, len(items))
	for i, it := range items {
		out[i] = transport.CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity, Note: it.Note}
	}
	return out, nil
}
