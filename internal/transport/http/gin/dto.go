package httpgin

import (
	"time"

	"github.com/gigaloka/loket-go/internal/domain"
)

type CheckoutItemInput struct {
	TierID   string `json:"tier_id" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	EventID     string              `json:"event_id" binding:"required,uuid"`
	Items       []CheckoutItemInput `json:"items" binding:"required,min=1,dive"`
	VoucherCode string              `json:"voucher_code"`
}

type SubmitProofRequest struct {
	ProofURL string `json:"proof_url" binding:"required,url"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CreateTierInput struct {
	Name      string `json:"name" binding:"required"`
	UnitPrice int64  `json:"unit_price" binding:"min=0"`
	Seats     int    `json:"seats" binding:"required,gt=0"`
}

type CreateEventRequest struct {
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	StartsAt    string            `json:"starts_at" binding:"required"`
	EndsAt      string            `json:"ends_at" binding:"required"`
	Location    string            `json:"location"`
	Venue       string            `json:"venue"`
	BasePrice   int64             `json:"base_price" binding:"min=0"`
	ImageURL    string            `json:"image_url"`
	Tiers       []CreateTierInput `json:"tiers" binding:"required,min=1,dive"`
}

type CreatePromotionRequest struct {
	EventID       string `json:"event_id" binding:"required,uuid"`
	Code          string `json:"code" binding:"required"`
	DiscountType  string `json:"discount_type" binding:"required,oneof=percent nominal"`
	DiscountValue int64  `json:"discount_value" binding:"required,gt=0"`
	StartDate     string `json:"start_date" binding:"required"`
	EndDate       string `json:"end_date" binding:"required"`
	Status        string `json:"status" binding:"omitempty,oneof=active inactive"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type TransactionItemResponse struct {
	ID       string `json:"id"`
	TierID   string `json:"tier_id"`
	Quantity int    `json:"quantity"`
}

type TransactionResponse struct {
	ID          string                    `json:"id"`
	EventID     string                    `json:"event_id"`
	UserID      string                    `json:"user_id"`
	VoucherCode string                    `json:"voucher_code,omitempty"`
	PaidAmount  int64                     `json:"paid_amount"`
	ProofURL    string                    `json:"proof_url,omitempty"`
	Status      string                    `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	Items       []TransactionItemResponse `json:"items,omitempty"`
}

func toTransactionResponse(t domain.Transaction, items []domain.TransactionItem) TransactionResponse {
	resp := TransactionResponse{
		ID:          t.ID.String(),
		EventID:     t.EventID.String(),
		UserID:      t.UserID.String(),
		VoucherCode: t.VoucherCode,
		PaidAmount:  t.PaidAmount,
		ProofURL:    t.ProofURL,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, TransactionItemResponse{
			ID:       it.ID.String(),
			TierID:   it.TierID.String(),
			Quantity: it.Quantity,
		})
	}
	return resp
}

type EventResponse struct {
	Event domain.Event        `json:"event"`
	Tiers []domain.TicketTier `json:"tiers"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
