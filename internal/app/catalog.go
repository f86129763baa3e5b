package app

import (
	"fmt"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/shopspring/decimal"
)

// demoCatalog seeds the in-memory storage with one room of 5 rows by 10 seats and
// the promotions used in local testing.
func demoCatalog(now time.Time) (*repository.MemoryScreeningRepository, *repository.MemoryPromotionRepository) {
	var seats []string
	for _, row := range "ABCDE" {
		for col := 1; col <= 10; col++ {
			seats = append(seats, fmt.Sprintf("%c%d", row, col))
		}
	}

	screenings := repository.NewMemoryScreeningRepository(
		&domain.Screening{
			ID:        1,
			MovieID:   1,
			RoomID:    1,
			StartsAt:  now.Add(24 * time.Hour),
			EndsAt:    now.Add(26 * time.Hour),
			BasePrice: decimal.NewFromInt(100000),
			SeatCodes: seats,
		},
		&domain.Screening{
			ID:        2,
			MovieID:   2,
			RoomID:    1,
			StartsAt:  now.Add(27 * time.Hour),
			EndsAt:    now.Add(29 * time.Hour),
			BasePrice: decimal.NewFromInt(80000),
			SeatCodes: seats,
		},
	)

	promotions := repository.NewMemoryPromotionRepository(
		&domain.Promotion{
			Code:      "SAVE20",
			Type:      domain.PromotionPercentage,
			Value:     decimal.NewFromInt(20),
			StartDate: now.AddDate(0, 0, -1),
			EndDate:   now.AddDate(0, 1, 0),
			MaxUsage:  100,
			Active:    true,
		},
		&domain.Promotion{
			Code:      "FLAT50K",
			Type:      domain.PromotionFixed,
			Value:     decimal.NewFromInt(50000),
			StartDate: now.AddDate(0, 0, -1),
			EndDate:   now.AddDate(0, 1, 0),
			Active:    true,
		},
	)

	return screenings, promotions
}
