package models

import "errors"

// Named error conditions surfaced to callers. The HTTP layer maps these to
// response codes; below it they are wrapped with %w and matched with
// errors.Is.
var (
	ErrProductDoesNotExist     = errors.New("PRODUCT_DOES_NOT_EXIST")
	ErrProductOutOfStock       = errors.New("PRODUCT_OUT_OF_STOCK")
	ErrProductIsNotInCart      = errors.New("PRODUCT_IS_NOT_IN_CART")
	ErrCartDoesNotExist        = errors.New("CART_DOES_NOT_EXIST")
	ErrCartIsEmpty             = errors.New("CART_IS_EMPTY")
	ErrCartLimitReached        = errors.New("CART_LIMIT_REACHED")
	ErrOrderDoesNotExist       = errors.New("ORDER_DOES_NOT_EXIST")
	ErrValidation              = errors.New("VALIDATION_ERROR")
	ErrOrderAlreadyCancelled   = errors.New("ORDER_ALREADY_CANCELLED")
	ErrOrderCannotBeCancelled  = errors.New("ORDER_CANNOT_BE_CANCELLED")
	ErrInvalidStatusTransition = errors.New("INVALID_STATUS_TRANSITION")
)
