package order

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInvalidTransition  = errors.New("order cannot move to that status")
	ErrDuplicateRequest   = errors.New("order request already processed")
	ErrPOSItemsRequired   = errors.New("point of sale orders need explicit items")
	ErrRequestIDRequired  = errors.New("request_id is required")
)
