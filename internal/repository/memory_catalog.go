package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// MemoryScreeningRepository serves screenings registered with Add.
type MemoryScreeningRepository struct {
	mu         sync.RWMutex
	screenings map[int]*domain.Screening
}

func NewMemoryScreeningRepository(screenings ...*domain.Screening) *MemoryScreeningRepository {
	r := &MemoryScreeningRepository{
		screenings: make(map[int]*domain.Screening),
	}

	for _, s := range screenings {
		r.Add(s)
	}

	return r
}

func (r *MemoryScreeningRepository) Add(screening *domain.Screening) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *screening
	s.SeatCodes = slices.Clone(screening.SeatCodes)
	r.screenings[s.ID] = &s
}

func (r *MemoryScreeningRepository) GetByID(ctx context.Context, id int) (*domain.Screening, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	screening, exists := r.screenings[id]
	if !exists {
		return nil, domain.ErrRecordNotFound
	}

	s := *screening
	s.SeatCodes = slices.Clone(screening.SeatCodes)
	return &s, nil
}

// MemoryPromotionRepository serves promotions registered with Add.
type MemoryPromotionRepository struct {
	mu         sync.RWMutex
	promotions map[string]*domain.Promotion
}

func NewMemoryPromotionRepository(promotions ...*domain.Promotion) *MemoryPromotionRepository {
	r := &MemoryPromotionRepository{
		promotions: make(map[string]*domain.Promotion),
	}

	for _, p := range promotions {
		r.Add(p)
	}

	return r
}

func (r *MemoryPromotionRepository) Add(promotion *domain.Promotion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := *promotion
	r.promotions[p.Code] = &p
}

func (r *MemoryPromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	promotion, exists := r.promotions[code]
	if !exists {
		return nil, domain.ErrRecordNotFound
	}

	p := *promotion
	return &p, nil
}

func (r *MemoryPromotionRepository) IncrementUsage(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	promotion, exists := r.promotions[code]
	if !exists {
		return domain.ErrRecordNotFound
	}

	if promotion.IsExhausted() {
		return &domain.PromotionRejectedError{Code: code, Reason: domain.PromotionExhausted}
	}

	promotion.CurrentUsage++

	return nil
}
