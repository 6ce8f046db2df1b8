package cart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qahwa/cafe-api/internal/domain/product"
)

// ProductLookup resolves menu items for the cart
type ProductLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

// Service handles cart business logic
type Service struct {
	repo     Repository
	products ProductLookup
	now      func() time.Time
}

// NewService creates cart service
func NewService(repo Repository, products ProductLookup) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// Get returns the user's cart lines
func (s *Service) Get(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	return s.repo.List(ctx, userID)
}

// AddItem puts a paid product in the cart at its current price
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Item, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, product.ErrProductNotFound
	}
	if !p.CanOrder() {
		return nil, product.ErrProductUnavailable
	}

	return s.repo.Add(ctx, &Item{
		ID:          uuid.New(),
		UserID:      userID,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    quantity,
		UnitPrice:   p.Price,
		CreatedAt:   s.now(),
	})
}

// UpdateQuantity changes a paid line's quantity
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*Item, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateQuantity(ctx, itemID, userID, quantity); err != nil {
		return nil, err
	}
	item.Quantity = quantity
	return item, nil
}

// Remove deletes a paid line
func (s *Service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	if _, err := s.ownedItem(ctx, userID, itemID); err != nil {
		return err
	}
	return s.repo.Remove(ctx, itemID, userID)
}

// ownedItem hides other users' lines behind ErrItemNotFound
func (s *Service) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*Item, error) {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.UserID != userID {
		return nil, ErrItemNotFound
	}
	if item.IsReward() {
		return nil, ErrRewardLineLocked
	}
	return item, nil
}
