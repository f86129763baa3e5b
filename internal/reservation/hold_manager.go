// Package reservation coordinates seat holds and booking lifecycle transitions on
// top of a domain.SeatLedger and a domain.BookingRepository.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultHoldTTL = 120 * time.Second

	reasonHoldExpired = "hold expired"
)

type ReserveInput struct {
	UserID      int
	ScreeningID int
	SeatCodes   []string
}

// HoldManager creates and expires holds. It owns the pairing between a pending
// booking and its ledger hold.
type HoldManager struct {
	ledger     domain.SeatLedger
	bookings   domain.BookingRepository
	screenings domain.ScreeningRepository
	events     domain.EventPublisher
	logger     *slog.Logger
	holdTTL    time.Duration
	now        func() time.Time
	metrics    *metrics
}

type Option func(*HoldManager)

func WithHoldTTL(ttl time.Duration) Option {
	return func(m *HoldManager) {
		if ttl > 0 {
			m.holdTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *HoldManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *HoldManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithEventPublisher(events domain.EventPublisher) Option {
	return func(m *HoldManager) {
		m.events = events
	}
}

func NewHoldManager(
	ledger domain.SeatLedger,
	bookings domain.BookingRepository,
	screenings domain.ScreeningRepository,
	opts ...Option) *HoldManager {

	m := &HoldManager{
		ledger:     ledger,
		bookings:   bookings,
		screenings: screenings,
		logger:     slog.Default(),
		holdTTL:    DefaultHoldTTL,
		now:        time.Now,
		metrics:    newMetrics(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *HoldManager) HoldTTL() time.Duration {
	return m.holdTTL
}

// Reserve holds the requested seats and records a pending booking for them. The
// hold is released again when the booking cannot be stored.
func (m *HoldManager) Reserve(ctx context.Context, input ReserveInput) (*domain.Booking, error) {
	screening, err := m.screenings.GetByID(ctx, input.ScreeningID)
	if err != nil {
		return nil, err
	}

	seatCodes, err := validateSeats(screening, input.SeatCodes)
	if err != nil {
		return nil, err
	}

	now := m.now()

	hold, err := m.CreateHold(ctx, uuid.New(), screening.ID, seatCodes, now.Add(m.holdTTL))
	if err != nil {
		return nil, err
	}

	booking := domain.NewBooking(input.UserID, screening, hold, now)

	err = m.bookings.Create(ctx, booking)
	if err != nil {
		if releaseErr := m.ledger.Release(ctx, hold.BookingID); releaseErr != nil {
			m.logger.ErrorContext(ctx, "failed to release hold of unsaved booking",
				"bookingId", hold.BookingID, "error", releaseErr)
		}

		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	m.publish(ctx, booking)

	return booking, nil
}

// CreateHold claims seats for a booking until expiresAt.
func (m *HoldManager) CreateHold(
	ctx context.Context,
	bookingID uuid.UUID,
	screeningID int,
	seatCodes []string,
	expiresAt time.Time) (*domain.Hold, error) {

	hold, err := m.ledger.TryReserve(ctx, domain.Hold{
		BookingID:   bookingID,
		ScreeningID: screeningID,
		SeatCodes:   seatCodes,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSeatConflict) {
			m.metrics.seatConflicts.Add(ctx, 1)
		}

		return nil, err
	}

	m.metrics.holdsCreated.Add(ctx, 1)

	return hold, nil
}

// Rehold swaps the booking's held seats for seatCodes. The hold keeps the
// booking's current expiry, so changing seats never extends the window.
func (m *HoldManager) Rehold(ctx context.Context, booking *domain.Booking, seatCodes []string) (*domain.Hold, error) {
	return m.CreateHold(ctx, booking.ID, booking.ScreeningID, seatCodes, booking.HoldExpiresAt)
}

// Expire moves a pending booking to expired and frees its seats. When another
// transition won first, the stored booking is returned together with an
// *domain.InvalidTransitionError and the ledger is left alone.
func (m *HoldManager) Expire(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	booking, err := m.bookings.Transition(ctx, bookingID, domain.BookingStatusExpired, reasonHoldExpired, nil)
	if err != nil {
		return booking, err
	}

	if err := m.ledger.Release(ctx, bookingID); err != nil {
		// The hold's own expiry already frees the seats on the next ledger read.
		m.logger.WarnContext(ctx, "failed to release expired hold", "bookingId", bookingID, "error", err)
	}

	m.metrics.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(booking.Status))))
	m.publish(ctx, booking)

	return booking, nil
}

// Reconcile expires a pending booking when its hold window has elapsed or the
// ledger no longer has its hold, and returns the current state. Every read and
// mutation path goes through it.
func (m *HoldManager) Reconcile(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	if booking.Status != domain.BookingStatusPending {
		return booking, nil
	}

	if !booking.IsHoldExpired(m.now()) {
		_, err := m.ledger.GetHold(ctx, booking.ID)
		if err == nil {
			return booking, nil
		}

		if !errors.Is(err, domain.ErrHoldNotFound) {
			return nil, fmt.Errorf("failed to read hold of booking %s: %w", booking.ID, err)
		}

		m.logger.WarnContext(ctx, "pending booking lost its hold", "bookingId", booking.ID)
	}

	expired, err := m.Expire(ctx, booking.ID)
	if err != nil {
		var transitionErr *domain.InvalidTransitionError
		if errors.As(err, &transitionErr) && expired != nil {
			return expired, nil
		}

		return nil, err
	}

	return expired, nil
}

// QuerySeats reports every seat of the screening's room with its current status.
func (m *HoldManager) QuerySeats(ctx context.Context, screeningID int) (*domain.SeatMap, error) {
	screening, err := m.screenings.GetByID(ctx, screeningID)
	if err != nil {
		return nil, err
	}

	occupied, err := m.ledger.QuerySeats(ctx, screeningID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats of screening %d: %w", screeningID, err)
	}

	seatMap := &domain.SeatMap{
		ScreeningID: screeningID,
		Seats:       make([]domain.SeatState, 0, len(screening.SeatCodes)),
	}

	for _, code := range screening.SeatCodes {
		status, ok := occupied[code]
		if !ok {
			status = domain.SeatAvailable
		}

		seatMap.Seats = append(seatMap.Seats, domain.SeatState{Code: code, Status: status})
	}

	return seatMap, nil
}

func (m *HoldManager) publish(ctx context.Context, booking *domain.Booking) {
	if m.events == nil {
		return
	}

	event := domain.NewBookingEvent(booking, m.now())

	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "failed to publish booking event",
			"bookingId", booking.ID, "type", event.Type, "error", err)
	}
}

func validateSeats(screening *domain.Screening, seatCodes []string) ([]string, error) {
	codes := domain.NormalizeSeatCodes(seatCodes)
	if len(codes) == 0 {
		return nil, domain.ErrNoSeatsSelected
	}

	if unknown := screening.UnknownSeats(codes); len(unknown) > 0 {
		return nil, &domain.UnknownSeatError{SeatCodes: unknown}
	}

	return codes, nil
}
