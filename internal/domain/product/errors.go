package product

import "errors"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrSKUTaken           = errors.New("sku already exists")
	ErrInvalidImage       = errors.New("invalid image")
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrStorageDisabled = errors.New("image storage is not configured")
)
