package loyalty

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientPoints is matched by *InsufficientPointsError
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrRewardNotFound is returned for an unknown reward id
	ErrRewardNotFound = errors.New("reward not found")

	// ErrRewardUnavailable is returned when a reward is inactive or past valid_until
	ErrRewardUnavailable = errors.New("reward unavailable")

	// ErrProfileNotFound is returned when the user has no active loyalty profile
	ErrProfileNotFound = errors.New("loyalty profile not found")

	// ErrInvalidPoints is returned when a points amount is <= 0
	ErrInvalidPoints = errors.New("invalid points: must be greater than 0")

	// ErrInvalidDiscountAmount is returned when a points redemption asks for more than the points are worth
	ErrInvalidDiscountAmount = errors.New("discount amount must be positive and within the value of the points")

	// ErrRequestIDRequired is returned when a balance-changing call has no idempotency key
	ErrRequestIDRequired = errors.New("request id is required")

	// ErrRequestConflict is returned when a request id is reused for a different operation
	ErrRequestConflict = errors.New("request id already used for a different operation")

	// ErrDuplicateRequest is returned by the repository when a request id already exists
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrAlreadyCredited is returned when an order has already earned points
	ErrAlreadyCredited = errors.New("order already credited")

	// ErrAlreadyRefunded is returned when a redemption has already been refunded
	ErrAlreadyRefunded = errors.New("redemption already refunded")

	// ErrLedgerInconsistent means lots and profile disagree; it is never user-correctable
	ErrLedgerInconsistent = errors.New("loyalty ledger inconsistent")
)

// InsufficientPointsError reports the balance and the cost that exceeded it
type InsufficientPointsError struct {
	Current  int
	Required int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: have %d, need %d", e.Current, e.Required)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}
