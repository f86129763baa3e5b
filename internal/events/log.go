package events

import (
	"context"
	"log/slog"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// LogPublisher writes events to the application log. It is used when no broker
// is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	p.logger.InfoContext(ctx, "booking event",
		"type", event.Type,
		"bookingId", event.BookingID,
		"userId", event.UserID,
		"screeningId", event.ScreeningID,
		"seatCodes", event.SeatCodes,
		"totalPrice", event.TotalPrice.String(),
		"status", event.Status,
		"reason", event.Reason,
	)

	return nil
}
