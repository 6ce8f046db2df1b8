package cart

import "errors"

var (
	ErrItemNotFound             = errors.New("cart item not found")
	ErrRewardLineLocked         = errors.New("reward items cannot be changed")
	ErrRewardProductUnavailable = errors.New("reward product unavailable")
	ErrEmptyCart                = errors.New("cart is empty")
)
