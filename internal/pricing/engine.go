// Package pricing computes booking totals and validates promo codes. It keeps no
// state of its own; promotions are read through domain.PromotionRepository.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Engine struct {
	promotions domain.PromotionRepository
	now        func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(promotions domain.PromotionRepository, opts ...Option) *Engine {
	e := &Engine{
		promotions: promotions,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ComputeTotal returns basePrice × seatCount.
func ComputeTotal(basePrice decimal.Decimal, seatCount int) decimal.Decimal {
	return basePrice.Mul(decimal.NewFromInt(int64(seatCount)))
}

// Discount applies a promotion's rule to an undiscounted total. Percentage discounts
// are rounded to whole currency units; fixed discounts never exceed the total.
func Discount(p *domain.Promotion, total decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch p.Type {
	case domain.PromotionPercentage:
		pct := decimal.Min(decimal.Max(p.Value, decimal.Zero), hundred)
		discount = total.Mul(pct).Div(hundred).Round(0)
	case domain.PromotionFixed:
		discount = decimal.Max(p.Value, decimal.Zero)
	}

	return decimal.Min(discount, total)
}

// ApplyPromotion validates code against the current selection and returns the
// discounted total. Rejections are reported as *domain.PromotionRejectedError
// carrying the undiscounted total.
func (e *Engine) ApplyPromotion(
	ctx context.Context,
	code string,
	basePrice decimal.Decimal,
	seatCount int) (*domain.PromotionApplication, error) {

	code = NormalizeCode(code)
	total := ComputeTotal(basePrice, seatCount)

	promo, err := e.promotions.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, &domain.PromotionRejectedError{Code: code, Reason: domain.PromotionNotFound, Total: total}
		}

		return nil, fmt.Errorf("failed to look up promotion %q: %w", code, err)
	}

	if reason, ok := e.checkEligibility(promo); !ok {
		return nil, &domain.PromotionRejectedError{Code: code, Reason: reason, Total: total}
	}

	discount := Discount(promo, total)

	return &domain.PromotionApplication{
		Code:            promo.Code,
		IsValid:         true,
		Discount:        discount,
		DiscountedTotal: total.Sub(discount),
	}, nil
}

func (e *Engine) checkEligibility(p *domain.Promotion) (domain.PromotionRejectionReason, bool) {
	now := e.now()

	switch {
	case !p.Active:
		return domain.PromotionInactive, false
	case !p.StartDate.IsZero() && now.Before(p.StartDate):
		return domain.PromotionNotStarted, false
	case !p.EndDate.IsZero() && now.After(p.EndDate):
		return domain.PromotionEnded, false
	case p.IsExhausted():
		return domain.PromotionExhausted, false
	}

	return "", true
}

// Quote is the price of a seat selection with an optional promo code re-applied.
type Quote struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	PromoCode *string
	// Rejection is set when a previously applied code no longer qualifies. The quote
	// is then undiscounted.
	Rejection *domain.PromotionRejectedError
}

// Quote reprices a selection. A stale promo code is dropped rather than kept, so
// callers never carry a discount that no longer applies.
func (e *Engine) Quote(
	ctx context.Context,
	basePrice decimal.Decimal,
	seatCount int,
	promoCode *string) (Quote, error) {

	subtotal := ComputeTotal(basePrice, seatCount)
	q := Quote{Subtotal: subtotal, Discount: decimal.Zero, Total: subtotal}

	if promoCode == nil || *promoCode == "" {
		return q, nil
	}

	app, err := e.ApplyPromotion(ctx, *promoCode, basePrice, seatCount)
	if err != nil {
		var rejected *domain.PromotionRejectedError
		if errors.As(err, &rejected) {
			q.Rejection = rejected
			return q, nil
		}

		return Quote{}, err
	}

	code := app.Code
	q.PromoCode = &code
	q.Discount = app.Discount
	q.Total = app.DiscountedTotal

	return q, nil
}

// NormalizeCode trims and upper-cases a promo code as typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
