package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingEventType string

const (
	EventBookingReserved  BookingEventType = "booking.reserved"
	EventBookingPaid      BookingEventType = "booking.paid"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
	EventBookingFailed    BookingEventType = "booking.failed"
)

// EventTypeForStatus maps a terminal status to the event announcing it.
func EventTypeForStatus(status BookingStatus) BookingEventType {
	switch status {
	case BookingStatusPaid:
		return EventBookingPaid
	case BookingStatusCancelled:
		return EventBookingCancelled
	case BookingStatusExpired:
		return EventBookingExpired
	case BookingStatusFailed:
		return EventBookingFailed
	default:
		return EventBookingReserved
	}
}

type BookingEvent struct {
	Type        BookingEventType `json:"type"`
	BookingID   uuid.UUID        `json:"bookingId"`
	UserID      int              `json:"userId"`
	ScreeningID int              `json:"screeningId"`
	SeatCodes   []string         `json:"seatCodes"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	Status      BookingStatus    `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:        EventTypeForStatus(b.Status),
		BookingID:   b.ID,
		UserID:      b.UserID,
		ScreeningID: b.ScreeningID,
		SeatCodes:   b.SeatCodes,
		TotalPrice:  b.TotalPrice,
		Status:      b.Status,
		Reason:      b.StatusReason,
		OccurredAt:  at,
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}
