package checkout

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNoItems         = errors.New("no items in cart")
	ErrEventNotFound   = errors.New("event not found")
	ErrVoucherNotFound = errors.New("voucher not found")
	ErrVoucherInactive = errors.New("voucher is not active")
	ErrVoucherExpired  = errors.New("voucher is outside its validity window")
)

// Shortfall describes one tier that cannot satisfy the requested quantity.
type Shortfall struct {
	TierID    uuid.UUID `json:"tier_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// InsufficientStockError carries every shortfall in the cart, not just the
// first, so the caller can update all affected tiers at once.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough seats for %d tier(s)", len(e.Shortfalls))
}

// UnknownTiersError lists requested tier IDs that do not belong to the
// event.
type UnknownTiersError struct {
	TierIDs []uuid.UUID
}

func (e *UnknownTiersError) Error() string {
	return fmt.Sprintf("unknown ticket tiers: %v", e.TierIDs)
}

// InvalidQuantityError rejects a non-positive line quantity.
type InvalidQuantityError struct {
	TierID   uuid.UUID
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for tier %s", e.Quantity, e.TierID)
}
