package discount

import "errors"

var (
	ErrDiscountNotFound = errors.New("discount not found")
	ErrDiscountUsed     = errors.New("discount already used")
	ErrNotOwner         = errors.New("discount belongs to another user")
)
