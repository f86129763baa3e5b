package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/pricing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	reasonCancelledByUser = "cancelled by user"

	commitAttempts   = 3
	commitRetryDelay = 50 * time.Millisecond
)

// StateMachine drives bookings from pending to a terminal status. The repository's
// Transition is the arbiter: whichever caller moves a pending booking first wins.
// A payment commits the seats before it moves the status and gives them back when
// it loses.
type StateMachine struct {
	holds      *HoldManager
	pricing    *pricing.Engine
	promotions domain.PromotionRepository
}

func NewStateMachine(holds *HoldManager, engine *pricing.Engine, promotions domain.PromotionRepository) *StateMachine {
	return &StateMachine{
		holds:      holds,
		pricing:    engine,
		promotions: promotions,
	}
}

// Get returns the user's booking after expiring it if its hold window has elapsed.
func (s *StateMachine) Get(ctx context.Context, bookingID uuid.UUID, userID int) (*domain.Booking, error) {
	booking, err := s.Lookup(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.UserID != userID {
		return nil, domain.ErrForbidden
	}

	return booking, nil
}

// Lookup is Get without the ownership check, for gateway callbacks.
func (s *StateMachine) Lookup(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	booking, err := s.holds.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	return s.holds.Reconcile(ctx, booking)
}

// loadPending returns the user's booking only while it can still be changed.
func (s *StateMachine) loadPending(
	ctx context.Context,
	bookingID uuid.UUID,
	userID int,
	attempted domain.BookingStatus) (*domain.Booking, error) {

	booking, err := s.Get(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case domain.BookingStatusPending:
		return booking, nil
	case domain.BookingStatusExpired:
		return nil, domain.ErrHoldExpired
	default:
		return nil, &domain.InvalidTransitionError{
			BookingID: booking.ID,
			Current:   booking.Status,
			Attempted: attempted,
		}
	}
}

// MarkPaid settles a booking after a successful payment. The seats recorded on the
// booking are committed in the ledger first, so a booking never becomes paid
// without them. Paying an already paid booking returns it unchanged.
func (s *StateMachine) MarkPaid(
	ctx context.Context,
	bookingID uuid.UUID,
	method domain.PaymentMethod,
	ref string) (*domain.Booking, error) {

	booking, err := s.commitSeats(ctx, bookingID)
	if err != nil || booking.Status == domain.BookingStatusPaid {
		return booking, err
	}

	paid, err := s.holds.bookings.Transition(
		ctx,
		bookingID,
		domain.BookingStatusPaid,
		"",
		&domain.PaymentDetails{Method: method, Ref: ref},
	)
	if err != nil {
		var transitionErr *domain.InvalidTransitionError
		if !errors.As(err, &transitionErr) {
			return nil, err
		}

		if transitionErr.Current == domain.BookingStatusPaid {
			return paid, nil
		}

		// Cancelled, expired or failed after the commit.
		if releaseErr := s.holds.ledger.Release(ctx, bookingID); releaseErr != nil {
			s.holds.logger.ErrorContext(ctx, "failed to release committed seats of a resolved booking",
				"bookingId", bookingID, "status", transitionErr.Current, "error", releaseErr)
		}

		return paid, err
	}

	if paid.PromoCode != nil {
		if err := s.promotions.IncrementUsage(ctx, *paid.PromoCode); err != nil {
			s.holds.logger.WarnContext(ctx, "failed to count promotion usage",
				"bookingId", bookingID, "promoCode", *paid.PromoCode, "error", err)
		}
	}

	s.recordResolved(ctx, paid)

	return paid, nil
}

// commitSeats books the seats of a pending booking. A hold that no longer matches
// the stored seats belongs to a seat update in flight and is retried against the
// re-read booking. A hold that is gone expires the booking.
func (s *StateMachine) commitSeats(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	for attempt := 1; ; attempt++ {
		booking, err := s.Lookup(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		if booking.Status == domain.BookingStatusPaid {
			return booking, nil
		}

		if booking.Status.IsTerminal() {
			return booking, &domain.InvalidTransitionError{
				BookingID: booking.ID,
				Current:   booking.Status,
				Attempted: domain.BookingStatusPaid,
			}
		}

		err = s.holds.ledger.Commit(ctx, bookingID, booking.SeatCodes)
		switch {
		case err == nil:
			return booking, nil

		case errors.Is(err, domain.ErrHoldNotFound):
			expired, err := s.holds.Expire(ctx, bookingID)
			if err != nil {
				return expired, err
			}

			return expired, &domain.InvalidTransitionError{
				BookingID: bookingID,
				Current:   expired.Status,
				Attempted: domain.BookingStatusPaid,
			}

		case errors.Is(err, domain.ErrHoldMismatch) && attempt < commitAttempts:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(commitRetryDelay):
			}

		case errors.Is(err, domain.ErrHoldMismatch):
			return nil, fmt.Errorf("seats of booking %s are being changed: %w", bookingID, domain.ErrEditConflict)

		default:
			return nil, fmt.Errorf("failed to commit seats of booking %s: %w", bookingID, err)
		}
	}
}

// Cancel releases the user's pending booking.
func (s *StateMachine) Cancel(ctx context.Context, bookingID uuid.UUID, userID int) (*domain.Booking, error) {
	_, err := s.loadPending(ctx, bookingID, userID, domain.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}

	return s.resolve(ctx, bookingID, domain.BookingStatusCancelled, reasonCancelledByUser)
}

// Fail records a declined payment and frees the seats.
func (s *StateMachine) Fail(ctx context.Context, bookingID uuid.UUID, reason string) (*domain.Booking, error) {
	return s.resolve(ctx, bookingID, domain.BookingStatusFailed, reason)
}

func (s *StateMachine) resolve(
	ctx context.Context,
	bookingID uuid.UUID,
	to domain.BookingStatus,
	reason string) (*domain.Booking, error) {

	booking, err := s.holds.bookings.Transition(ctx, bookingID, to, reason, nil)
	if err != nil {
		return booking, err
	}

	if err := s.holds.ledger.Release(ctx, bookingID); err != nil {
		s.holds.logger.WarnContext(ctx, "failed to release seats", "bookingId", bookingID, "status", to, "error", err)
	}

	s.recordResolved(ctx, booking)

	return booking, nil
}

// UpdateSeats replaces the seats of a pending booking. The new seats are held in one
// step with the old ones released; on conflict nothing changes. The hold keeps its
// original expiry and the total is recomputed, re-applying the promo code if it
// still qualifies.
func (s *StateMachine) UpdateSeats(
	ctx context.Context,
	bookingID uuid.UUID,
	userID int,
	seatCodes []string) (*domain.Booking, error) {

	booking, err := s.loadPending(ctx, bookingID, userID, domain.BookingStatusPending)
	if err != nil {
		return nil, err
	}

	screening, err := s.holds.screenings.GetByID(ctx, booking.ScreeningID)
	if err != nil {
		return nil, err
	}

	codes, err := validateSeats(screening, seatCodes)
	if err != nil {
		return nil, err
	}

	hold, err := s.holds.Rehold(ctx, booking, codes)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			return nil, s.settledError(ctx, bookingID)
		}

		return nil, err
	}

	booking.SeatCodes = hold.SeatCodes

	quote, err := s.pricing.Quote(ctx, booking.BasePrice, len(booking.SeatCodes), booking.PromoCode)
	if err != nil {
		s.restoreHold(ctx, bookingID)
		return nil, err
	}

	booking.Reprice(quote.PromoCode, quote.Discount)

	err = s.holds.bookings.Update(ctx, booking)
	if err != nil {
		var transitionErr *domain.InvalidTransitionError
		if errors.As(err, &transitionErr) {
			// A payment only commits the seats stored on the row, so a paid booking
			// keeps them. Any other winner may have released before the re-hold.
			if transitionErr.Current != domain.BookingStatusPaid {
				if releaseErr := s.holds.ledger.Release(ctx, bookingID); releaseErr != nil {
					s.holds.logger.WarnContext(ctx, "failed to release seats", "bookingId", bookingID, "error", releaseErr)
				}
			}

			return nil, err
		}

		s.restoreHold(ctx, bookingID)
		return nil, err
	}

	return booking, nil
}

// restoreHold points the hold back at the seats stored on the pending booking.
func (s *StateMachine) restoreHold(ctx context.Context, bookingID uuid.UUID) {
	stored, err := s.holds.bookings.GetByID(ctx, bookingID)
	if err == nil && stored.Status == domain.BookingStatusPending {
		_, err = s.holds.Rehold(ctx, stored, stored.SeatCodes)
	}

	if err != nil {
		s.holds.logger.ErrorContext(ctx, "failed to restore original seats", "bookingId", bookingID, "error", err)
	}
}

// settledError explains why the seats of a booking whose payment already committed
// them can no longer change.
func (s *StateMachine) settledError(ctx context.Context, bookingID uuid.UUID) error {
	stored, err := s.holds.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if !stored.Status.IsTerminal() {
		return domain.ErrEditConflict
	}

	return &domain.InvalidTransitionError{
		BookingID: bookingID,
		Current:   stored.Status,
		Attempted: domain.BookingStatusPending,
	}
}

// ApplyPromotion validates code against the booking and stores the discount. A
// rejected code leaves the booking as it was; the rejection carries its total.
func (s *StateMachine) ApplyPromotion(
	ctx context.Context,
	bookingID uuid.UUID,
	userID int,
	code string) (*domain.Booking, error) {

	booking, err := s.loadPending(ctx, bookingID, userID, domain.BookingStatusPending)
	if err != nil {
		return nil, err
	}

	application, err := s.pricing.ApplyPromotion(ctx, code, booking.BasePrice, len(booking.SeatCodes))
	if err != nil {
		var rejected *domain.PromotionRejectedError
		if !errors.As(err, &rejected) {
			return nil, err
		}

		rejected.Total = booking.TotalPrice

		return booking, err
	}

	promoCode := application.Code
	booking.Reprice(&promoCode, application.Discount)

	if err := s.holds.bookings.Update(ctx, booking); err != nil {
		return nil, err
	}

	return booking, nil
}

// PrepareCheckout returns the user's pending booking ready to be paid. An applied
// promo code that no longer qualifies is removed, the booking is saved with the
// undiscounted total and the rejection is returned.
func (s *StateMachine) PrepareCheckout(ctx context.Context, bookingID uuid.UUID, userID int) (*domain.Booking, error) {
	booking, err := s.loadPending(ctx, bookingID, userID, domain.BookingStatusPaid)
	if err != nil {
		return nil, err
	}

	if booking.PromoCode == nil {
		return booking, nil
	}

	quote, err := s.pricing.Quote(ctx, booking.BasePrice, len(booking.SeatCodes), booking.PromoCode)
	if err != nil {
		return nil, err
	}

	if quote.Rejection == nil {
		if quote.Discount.Equal(booking.Discount) {
			return booking, nil
		}

		booking.Reprice(quote.PromoCode, quote.Discount)

		if err := s.holds.bookings.Update(ctx, booking); err != nil {
			return nil, err
		}

		return booking, nil
	}

	booking.Reprice(nil, decimal.Zero)

	if err := s.holds.bookings.Update(ctx, booking); err != nil {
		return nil, err
	}

	rejection := *quote.Rejection
	rejection.Total = booking.TotalPrice

	return booking, &rejection
}

func (s *StateMachine) recordResolved(ctx context.Context, booking *domain.Booking) {
	s.holds.metrics.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(booking.Status))))
	s.holds.publish(ctx, booking)
}
