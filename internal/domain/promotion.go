package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PromotionType string

const (
	PromotionPercentage PromotionType = "percentage"
	PromotionFixed      PromotionType = "fixed"
)

type Promotion struct {
	Code         string
	Type         PromotionType
	Value        decimal.Decimal
	StartDate    time.Time
	EndDate      time.Time
	MaxUsage     int
	CurrentUsage int
	Active       bool
}

// IsExhausted reports whether the usage cap is reached. A cap of zero or less
// means unlimited usage.
func (p *Promotion) IsExhausted() bool {
	return p.MaxUsage > 0 && p.CurrentUsage >= p.MaxUsage
}

// PromotionApplication is the result of validating a promo code against a seat
// selection. It is never persisted on its own.
type PromotionApplication struct {
	Code            string
	IsValid         bool
	Discount        decimal.Decimal
	DiscountedTotal decimal.Decimal
}

type PromotionRepository interface {
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	// IncrementUsage counts one more redemption. It fails with ErrPromotionRejected
	// when the cap was reached in the meantime.
	IncrementUsage(ctx context.Context, code string) error
}
