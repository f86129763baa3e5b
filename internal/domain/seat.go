package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
)

// Hold is a time-boxed exclusive claim on a set of seats for one booking.
type Hold struct {
	BookingID   uuid.UUID
	ScreeningID int
	SeatCodes   []string
	ExpiresAt   time.Time
}

func (h *Hold) IsExpired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// SeatLedger is the authoritative per-screening seat occupancy record.
type SeatLedger interface {
	// QuerySeats returns the status of every occupied seat of the screening after
	// releasing holds whose window has elapsed. Seats missing from the map are available.
	QuerySeats(ctx context.Context, screeningID int) (map[string]SeatStatus, error)
	// TryReserve holds all requested seats for the booking or none of them. When the
	// booking already owns a hold its seat set is replaced atomically. Seats taken by
	// another booking are reported through a SeatConflictError. Once the booking's
	// seats are committed it fails with ErrAlreadyResolved.
	TryReserve(ctx context.Context, hold Hold) (*Hold, error)
	// Commit turns the booking's live hold into booked seats. It fails with
	// ErrHoldNotFound when the hold is gone or its window has elapsed and with
	// ErrHoldMismatch when the hold covers seats other than seatCodes. Committing
	// the same seats again is a no-op.
	Commit(ctx context.Context, bookingID uuid.UUID, seatCodes []string) error
	// Release frees every seat the booking holds or has booked.
	Release(ctx context.Context, bookingID uuid.UUID) error
	// GetHold returns the booking's hold, committed or not, while it still owns seats.
	GetHold(ctx context.Context, bookingID uuid.UUID) (*Hold, error)
}

type SeatMap struct {
	ScreeningID int
	Seats       []SeatState
}

type SeatState struct {
	Code   string
	Status SeatStatus
}

// NormalizeSeatCodes upper-cases and trims seat codes and drops duplicates while
// keeping the caller's order.
func NormalizeSeatCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))

	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}

		if _, dup := seen[code]; dup {
			continue
		}

		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out
}
