package product

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/pkg/imaging"
	"github.com/qahwa/cafe-api/internal/pkg/storage"
)

// Service handles menu business logic
type Service struct {
	repo      Repository
	storage   storage.Storage
	processor *imaging.Processor
	now       func() time.Time
}

// NewService creates product service. store may be nil, in which case image
// uploads are rejected.
func NewService(repo Repository, store storage.Storage, processor *imaging.Processor) *Service {
	return &Service{
		repo:      repo,
		storage:   store,
		processor: processor,
		now:       time.Now,
	}
}

// Get returns a live product
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// List returns a page of the menu
func (s *Service) List(ctx context.Context, f ListFilter) ([]Product, int, error) {
	return s.repo.List(ctx, f)
}

// Create adds a menu item
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Product, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("%w: price", ErrInvalidPrice)
	}

	now := s.now()
	p := &Product{
		ID:          uuid.New(),
		SKU:         req.SKU,
		Name:        req.Name,
		NameAr:      req.NameAr,
		Description: req.Description,
		Category:    Category(req.Category),
		Price:       price.Round(2),
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info().Str("product_id", p.ID.String()).Str("sku", p.SKU).Msg("product created")
	return p, nil
}

// Update applies the non-empty fields of req
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.SKU != nil {
		p.SKU = *req.SKU
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.NameAr != nil {
		p.NameAr = *req.NameAr
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Category != nil {
		p.Category = Category(*req.Category)
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: price", ErrInvalidPrice)
		}
		p.Price = price.Round(2)
	}
	if req.IsAvailable != nil {
		p.IsAvailable = *req.IsAvailable
	}
	p.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete soft-deletes a product
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}
	log.Info().Str("product_id", id.String()).Msg("product deleted")
	return nil
}

// UploadImage resizes the photo, stores original and thumbnail, and points the
// product at them
func (s *Service) UploadImage(ctx context.Context, id uuid.UUID, filename string, r io.Reader) (*Product, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	if !imaging.ValidateType(filename) {
		return nil, ErrInvalidImage
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	img, err := s.processor.Process(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	now := s.now()
	originalKey, thumbKey := imaging.GeneratePaths(p.ID, img.Ext, now)

	if err := s.storage.Put(ctx, originalKey, bytes.NewReader(img.Original), img.ContentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	if err := s.storage.Put(ctx, thumbKey, bytes.NewReader(img.Thumbnail), img.ContentType); err != nil {
		_ = s.storage.Delete(ctx, originalKey)
		return nil, fmt.Errorf("store thumbnail: %w", err)
	}

	imageURL := s.storage.GetURL(originalKey)
	thumbURL := s.storage.GetURL(thumbKey)
	if err := s.repo.SetImages(ctx, p.ID, imageURL, thumbURL, now); err != nil {
		_ = s.storage.Delete(ctx, originalKey)
		_ = s.storage.Delete(ctx, thumbKey)
		return nil, err
	}

	p.ImageURL = sql.NullString{String: imageURL, Valid: true}
	p.ThumbnailURL = sql.NullString{String: thumbURL, Valid: true}
	p.UpdatedAt = now

	log.Info().
		Str("product_id", p.ID.String()).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("product image uploaded")

	return p, nil
}
