package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gigaloka/loket-go/internal/domain"
	"github.com/gigaloka/loket-go/internal/repository"
)

// Service manages promotion codes and validates them against a cart
// subtotal.
type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

type CreateInput struct {
	EventID       uuid.UUID
	Code          string
	DiscountType  domain.DiscountType
	DiscountValue int64
	StartDate     time.Time
	EndDate       time.Time
	Status        domain.PromotionStatus
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Promotion, error) {
	const op = "service.promotions.Create"

	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" || in.DiscountValue <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPromotion)
	}
	switch in.DiscountType {
	case domain.DiscountPercent:
		if in.DiscountValue > 100 {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidPromotion)
		}
	case domain.DiscountNominal:
	default:
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPromotion)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPromotion)
	}

	status := in.Status
	if status == "" {
		status = domain.PromotionActive
	}

	if _, err := s.store.Events().Get(ctx, in.EventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	p := domain.Promotion{
		ID:            uuid.New(),
		EventID:       in.EventID,
		Code:          code,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Promotions().Create(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrDuplicateCode)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &p, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Promotion, error) {
	const op = "service.promotions.ListByEvent"

	list, err := s.store.Promotions().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return list, nil
}

// Quote is the outcome of validating a voucher against a subtotal.
type Quote struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

// Validate checks a voucher code for an event and quotes the discount it
// would apply to the given subtotal.
func (s *Service) Validate(ctx context.Context, eventID uuid.UUID, code string, subtotal int64) (Quote, error) {
	const op = "service.promotions.Validate"

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Quote{}, fmt.Errorf("%s:%w", op, ErrVoucherNotFound)
	}

	p, err := s.store.Promotions().FindByCode(ctx, eventID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Quote{}, fmt.Errorf("%s:%w", op, ErrVoucherNotFound)
		}
		return Quote{}, fmt.Errorf("%s:%w", op, err)
	}

	if p.Status != domain.PromotionActive {
		return Quote{}, fmt.Errorf("%s:%w", op, ErrVoucherInactive)
	}
	if !p.ActiveAt(time.Now()) {
		return Quote{}, fmt.Errorf("%s:%w", op, ErrVoucherExpired)
	}

	d := p.Discount(subtotal)

	return Quote{Code: p.Code, Discount: d, Total: subtotal - d}, nil
}
