package promotions

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrInvalidPromotion = errors.New("invalid promotion")
	ErrDuplicateCode    = errors.New("promotion code already exists for event")
	ErrVoucherNotFound  = errors.New("voucher not found")
	ErrVoucherInactive  = errors.New("voucher is inactive")
	ErrVoucherExpired   = errors.New("voucher is outside its validity window")
)
