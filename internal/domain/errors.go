package domain

import "errors"

var (
	ErrInvalidDateRange      = errors.New("check_out must be after check_in")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidGuestCount     = errors.New("invalid guest count")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrRoomNotFound          = errors.New("room not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrHoldNotOwned          = errors.New("hold belongs to another user")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrDuplicateWebhookEvent = errors.New("webhook event already processed")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedWebhookEvent = errors.New("malformed webhook event")
	ErrInvalidID             = errors.New("invalid id")
)
