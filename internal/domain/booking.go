package domain

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusFailed    BookingStatus = "failed"
)

// IsTerminal reports whether no further transition may leave the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusPaid, BookingStatusCancelled, BookingStatusExpired, BookingStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the lifecycle: pending moves to any terminal status and
// terminal statuses are absorbing. The pending to pending re-hold done by a seat
// update is not a status transition and never goes through here.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return s == BookingStatusPending && next.IsTerminal()
}

type Booking struct {
	ID            uuid.UUID
	UserID        int
	ScreeningID   int
	SeatCodes     []string
	BasePrice     decimal.Decimal
	PromoCode     *string
	Discount      decimal.Decimal
	TotalPrice    decimal.Decimal
	Status        BookingStatus
	StatusReason  string
	PaymentMethod *PaymentMethod
	PaymentRef    *string
	HoldExpiresAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int
}

// NewBooking builds a pending booking for a freshly created hold. Pricing starts
// undiscounted.
func NewBooking(userID int, screening *Screening, hold *Hold, now time.Time) *Booking {
	b := &Booking{
		ID:            hold.BookingID,
		UserID:        userID,
		ScreeningID:   screening.ID,
		SeatCodes:     slices.Clone(hold.SeatCodes),
		BasePrice:     screening.BasePrice,
		Status:        BookingStatusPending,
		HoldExpiresAt: hold.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}

	b.Reprice(nil, decimal.Zero)

	return b
}

// Subtotal is the undiscounted price of the current seat selection.
func (b *Booking) Subtotal() decimal.Decimal {
	return b.BasePrice.Mul(decimal.NewFromInt(int64(len(b.SeatCodes))))
}

// Reprice stores the promo code and discount and recomputes the total from the
// base price and seat count. The discount is clamped so the total never goes negative.
func (b *Booking) Reprice(promoCode *string, discount decimal.Decimal) {
	subtotal := b.Subtotal()

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	b.PromoCode = promoCode
	b.Discount = discount
	b.TotalPrice = subtotal.Sub(discount)
}

// IsHoldExpired reports whether the hold window has elapsed for a pending booking.
func (b *Booking) IsHoldExpired(now time.Time) bool {
	return b.Status == BookingStatusPending && !now.Before(b.HoldExpiresAt)
}

// RemainingHold is the time left in the hold window, zero once elapsed.
func (b *Booking) RemainingHold(now time.Time) time.Duration {
	if b.Status != BookingStatusPending {
		return 0
	}

	remaining := b.HoldExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}

	return remaining
}

type BookingRepository interface {
	Create(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Update persists seats, pricing and hold expiry of a pending booking. It fails
	// with ErrEditConflict when the stored version differs from booking.Version and
	// with an InvalidTransitionError when the booking is no longer pending.
	Update(ctx context.Context, booking *Booking) error
	// Transition moves a pending booking to a terminal status. Only the first caller
	// wins; later callers get an InvalidTransitionError together with the stored booking.
	Transition(ctx context.Context, id uuid.UUID, to BookingStatus, reason string, payment *PaymentDetails) (*Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
}

// PaymentDetails records how a booking was paid.
type PaymentDetails struct {
	Method PaymentMethod
	Ref    string
}
