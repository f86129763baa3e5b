package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MemoryBookingRepository keeps bookings in process. It backs the memory storage
// mode and the service tests.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*domain.Booking
	now      func() time.Time
}

func NewMemoryBookingRepository(now func() time.Time) *MemoryBookingRepository {
	if now == nil {
		now = time.Now
	}

	return &MemoryBookingRepository{
		bookings: make(map[uuid.UUID]*domain.Booking),
		now:      now,
	}
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return domain.ErrEditConflict
	}

	now := r.now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	r.bookings[booking.ID] = cloneBooking(booking)

	return nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, exists := r.bookings[id]
	if !exists {
		return nil, domain.ErrRecordNotFound
	}

	return cloneBooking(booking), nil
}

func (r *MemoryBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.bookings[booking.ID]
	if !exists {
		return domain.ErrRecordNotFound
	}

	if stored.Status != domain.BookingStatusPending {
		return &domain.InvalidTransitionError{
			BookingID: booking.ID,
			Current:   stored.Status,
			Attempted: domain.BookingStatusPending,
		}
	}

	if stored.Version != booking.Version {
		return domain.ErrEditConflict
	}

	stored.SeatCodes = slices.Clone(booking.SeatCodes)
	stored.PromoCode = clonePtr(booking.PromoCode)
	stored.Discount = booking.Discount
	stored.TotalPrice = booking.TotalPrice
	stored.HoldExpiresAt = booking.HoldExpiresAt
	stored.UpdatedAt = r.now()
	stored.Version++

	booking.UpdatedAt = stored.UpdatedAt
	booking.Version = stored.Version

	return nil
}

func (r *MemoryBookingRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.BookingStatus,
	reason string,
	payment *domain.PaymentDetails) (*domain.Booking, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.bookings[id]
	if !exists {
		return nil, domain.ErrRecordNotFound
	}

	if !stored.Status.CanTransitionTo(to) {
		return cloneBooking(stored), &domain.InvalidTransitionError{
			BookingID: id,
			Current:   stored.Status,
			Attempted: to,
		}
	}

	stored.Status = to
	stored.StatusReason = reason
	if payment != nil {
		method := payment.Method
		ref := payment.Ref
		stored.PaymentMethod = &method
		stored.PaymentRef = &ref
	}
	stored.UpdatedAt = r.now()
	stored.Version++

	return cloneBooking(stored), nil
}

func (r *MemoryBookingRepository) ListExpiredPending(
	ctx context.Context,
	now time.Time,
	limit int) ([]*domain.Booking, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	expired := make([]*domain.Booking, 0)
	for _, booking := range r.bookings {
		if booking.IsHoldExpired(now) {
			expired = append(expired, cloneBooking(booking))
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].HoldExpiresAt.Before(expired[j].HoldExpiresAt)
	})

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	return expired, nil
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.SeatCodes = slices.Clone(b.SeatCodes)
	c.PromoCode = clonePtr(b.PromoCode)
	c.PaymentMethod = clonePtr(b.PaymentMethod)
	c.PaymentRef = clonePtr(b.PaymentRef)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p
	return &v
}
