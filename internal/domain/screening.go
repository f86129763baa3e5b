package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Screening is a scheduled showing of a movie in a room. The reservation core only
// reads it.
type Screening struct {
	ID        int
	MovieID   int
	RoomID    int
	StartsAt  time.Time
	EndsAt    time.Time
	BasePrice decimal.Decimal
	SeatCodes []string
}

func (s *Screening) HasSeat(code string) bool {
	for _, c := range s.SeatCodes {
		if c == code {
			return true
		}
	}

	return false
}

// UnknownSeats returns the codes that are not part of the screening's room.
func (s *Screening) UnknownSeats(codes []string) []string {
	var unknown []string
	for _, code := range codes {
		if !s.HasSeat(code) {
			unknown = append(unknown, code)
		}
	}

	return unknown
}

type ScreeningRepository interface {
	GetByID(ctx context.Context, id int) (*Screening, error)
}
