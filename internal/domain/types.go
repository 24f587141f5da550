package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle state of a purchase attempt.
type TransactionStatus string

const (
	StatusAwaitingPayment      TransactionStatus = "awaiting_payment"
	StatusAwaitingConfirmation TransactionStatus = "awaiting_confirmation"
	StatusDone                 TransactionStatus = "done"
	StatusRejected             TransactionStatus = "rejected"
	StatusExpired              TransactionStatus = "expired"
	StatusCanceled             TransactionStatus = "canceled"
)

// SeatHoldingStatuses are the states during which a transaction's reserved
// seats are still withheld from the tier ledger.
var SeatHoldingStatuses = []TransactionStatus{
	StatusAwaitingPayment,
	StatusAwaitingConfirmation,
	StatusDone,
}

// ExpirableStatuses are the states the sweeper may move to expired once the
// payment deadline has elapsed. Done transactions keep their seats.
var ExpirableStatuses = []TransactionStatus{
	StatusAwaitingPayment,
	StatusAwaitingConfirmation,
}

func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusAwaitingPayment, StatusAwaitingConfirmation, StatusDone,
		StatusRejected, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// HoldsSeats reports whether a transaction in this status still withholds
// its reserved seats from the ledger.
func (s TransactionStatus) HoldsSeats() bool {
	switch s {
	case StatusAwaitingPayment, StatusAwaitingConfirmation, StatusDone:
		return true
	}
	return false
}

var statusTransitions = map[TransactionStatus][]TransactionStatus{
	StatusAwaitingPayment:      {StatusAwaitingConfirmation, StatusExpired, StatusCanceled},
	StatusAwaitingConfirmation: {StatusDone, StatusRejected, StatusExpired, StatusCanceled},
	StatusRejected:             {StatusAwaitingConfirmation, StatusCanceled},
	StatusDone:                 {StatusCanceled},
	StatusExpired:              {},
	StatusCanceled:             {},
}

// CanTransitionTo reports whether the state machine defines an edge from s
// to target.
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, t := range statusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

type Event struct {
	ID             uuid.UUID
	Title          string
	Description    string
	StartsAt       time.Time
	EndsAt         time.Time
	Location       string
	Venue          string
	BasePrice      int64
	ImageURL       string
	Capacity       int
	AvailableSeats int
	CreatedAt      time.Time
}

// TicketTier is a named class of ticket within an event with its own price
// and seat pool. AvailableSeats is mutated exclusively through the ledger's
// Reserve/Release operations.
type TicketTier struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	Name           string
	UnitPrice      int64
	TotalSeats     int
	AvailableSeats int
	CreatedAt      time.Time
}

func (t TicketTier) SoldOut() bool {
	return t.AvailableSeats == 0
}

type Transaction struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	UserID      uuid.UUID
	VoucherCode string
	PaidAmount  int64
	ProofURL    string
	Status      TransactionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Deadline returns the moment after which the sweeper may expire the
// transaction.
func (t Transaction) Deadline(paymentWindow time.Duration) time.Time {
	return t.CreatedAt.Add(paymentWindow)
}

// TransactionItem is a reserved line of a transaction. Immutable once
// inserted; only the parent's status changes.
type TransactionItem struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	TierID        uuid.UUID
	Quantity      int
}

type TransactionWithItems struct {
	Transaction Transaction
	Items       []TransactionItem
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountNominal DiscountType = "nominal"
)

type PromotionStatus string

const (
	PromotionActive   PromotionStatus = "active"
	PromotionInactive PromotionStatus = "inactive"
)

type Promotion struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	StartDate     time.Time
	EndDate       time.Time
	Status        PromotionStatus
	CreatedAt     time.Time
}

// ActiveAt reports whether the promotion is redeemable at now. The window
// spans start date 00:00 through end date 23:59:59.
func (p Promotion) ActiveAt(now time.Time) bool {
	if p.Status != PromotionActive {
		return false
	}
	start := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), 0, 0, 0, 0, p.StartDate.Location())
	end := time.Date(p.EndDate.Year(), p.EndDate.Month(), p.EndDate.Day(), 23, 59, 59, 0, p.EndDate.Location())
	return !now.Before(start) && !now.After(end)
}

// Discount returns the amount deducted from subtotal, never exceeding it.
func (p Promotion) Discount(subtotal int64) int64 {
	var d int64
	switch p.DiscountType {
	case DiscountPercent:
		d = subtotal * p.DiscountValue / 100
	case DiscountNominal:
		d = p.DiscountValue
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}

type TierAvailability struct {
	TierID         uuid.UUID
	Name           string
	UnitPrice      int64
	TotalSeats     int
	AvailableSeats int
	SoldOut        bool
}

type EventAvailability struct {
	EventID        uuid.UUID
	Capacity       int
	AvailableSeats int
	Tiers          []TierAvailability
}
