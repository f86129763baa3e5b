package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type seatEntry struct {
	status    domain.SeatStatus
	bookingID uuid.UUID
}

type holdEntry struct {
	hold      domain.Hold
	committed bool
}

type screeningSeats struct {
	mu    sync.Mutex
	seats map[string]seatEntry
	holds map[uuid.UUID]*holdEntry
}

// MemoryLedger keeps seat occupancy in process. Each screening is guarded by its
// own mutex so reservations on different screenings never contend.
type MemoryLedger struct {
	mu         sync.Mutex
	screenings map[int]*screeningSeats
	// bookingIndex maps a booking to its screening for as long as the booking holds
	// or owns seats.
	bookingIndex map[uuid.UUID]int
	now          func() time.Time
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}

	return &MemoryLedger{
		screenings:   make(map[int]*screeningSeats),
		bookingIndex: make(map[uuid.UUID]int),
		now:          now,
	}
}

func (l *MemoryLedger) screening(id int) *screeningSeats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.screenings[id]
	if !ok {
		s = &screeningSeats{
			seats: make(map[string]seatEntry),
			holds: make(map[uuid.UUID]*holdEntry),
		}
		l.screenings[id] = s
	}

	return s
}

func (l *MemoryLedger) lookupScreening(bookingID uuid.UUID) (*screeningSeats, bool) {
	l.mu.Lock()
	id, ok := l.bookingIndex[bookingID]
	l.mu.Unlock()

	if !ok {
		return nil, false
	}

	return l.screening(id), true
}

func (l *MemoryLedger) QuerySeats(ctx context.Context, screeningID int) (map[string]domain.SeatStatus, error) {
	s := l.screening(screeningID)

	s.mu.Lock()
	defer s.mu.Unlock()

	l.releaseExpiredLocked(s)

	result := make(map[string]domain.SeatStatus, len(s.seats))
	for code, entry := range s.seats {
		result[code] = entry.status
	}

	return result, nil
}

func (l *MemoryLedger) TryReserve(ctx context.Context, hold domain.Hold) (*domain.Hold, error) {
	s := l.screening(hold.ScreeningID)

	s.mu.Lock()
	defer s.mu.Unlock()

	l.releaseExpiredLocked(s)

	previous, ok := s.holds[hold.BookingID]
	if ok && previous.committed {
		return nil, domain.ErrAlreadyResolved
	}

	var conflicts []string
	for _, code := range hold.SeatCodes {
		entry, taken := s.seats[code]
		if taken && (entry.status == domain.SeatBooked || entry.bookingID != hold.BookingID) {
			conflicts = append(conflicts, code)
		}
	}

	if len(conflicts) > 0 {
		return nil, &domain.SeatConflictError{SeatCodes: conflicts}
	}

	if ok {
		for _, code := range previous.hold.SeatCodes {
			if !slices.Contains(hold.SeatCodes, code) {
				delete(s.seats, code)
			}
		}
	}

	for _, code := range hold.SeatCodes {
		s.seats[code] = seatEntry{status: domain.SeatHeld, bookingID: hold.BookingID}
	}

	stored := hold
	stored.SeatCodes = slices.Clone(hold.SeatCodes)
	s.holds[hold.BookingID] = &holdEntry{hold: stored}

	l.mu.Lock()
	l.bookingIndex[hold.BookingID] = hold.ScreeningID
	l.mu.Unlock()

	result := stored
	return &result, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, bookingID uuid.UUID, seatCodes []string) error {
	s, ok := l.lookupScreening(bookingID)
	if !ok {
		return domain.ErrHoldNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l.releaseExpiredLocked(s)

	entry, ok := s.holds[bookingID]
	if !ok {
		return domain.ErrHoldNotFound
	}

	if !sameSeats(entry.hold.SeatCodes, seatCodes) {
		return domain.ErrHoldMismatch
	}

	if entry.committed {
		return nil
	}

	for _, code := range entry.hold.SeatCodes {
		seat, taken := s.seats[code]
		if taken && seat.bookingID != bookingID {
			return &domain.SeatConflictError{SeatCodes: []string{code}}
		}
	}

	for _, code := range entry.hold.SeatCodes {
		s.seats[code] = seatEntry{status: domain.SeatBooked, bookingID: bookingID}
	}

	entry.committed = true

	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, bookingID uuid.UUID) error {
	s, ok := l.lookupScreening(bookingID)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l.releaseLocked(s, bookingID)

	return nil
}

func (l *MemoryLedger) GetHold(ctx context.Context, bookingID uuid.UUID) (*domain.Hold, error) {
	s, ok := l.lookupScreening(bookingID)
	if !ok {
		return nil, domain.ErrHoldNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.holds[bookingID]
	if !ok || (!entry.committed && entry.hold.IsExpired(l.now())) {
		return nil, domain.ErrHoldNotFound
	}

	result := entry.hold
	result.SeatCodes = slices.Clone(entry.hold.SeatCodes)

	return &result, nil
}

// releaseExpiredLocked is the read-repair step. s.mu must be held.
func (l *MemoryLedger) releaseExpiredLocked(s *screeningSeats) {
	now := l.now()

	for bookingID, entry := range s.holds {
		if !entry.committed && entry.hold.IsExpired(now) {
			l.releaseLocked(s, bookingID)
		}
	}
}

func (l *MemoryLedger) releaseLocked(s *screeningSeats, bookingID uuid.UUID) {
	entry, ok := s.holds[bookingID]
	if !ok {
		return
	}

	for _, code := range entry.hold.SeatCodes {
		seat, taken := s.seats[code]
		if taken && seat.bookingID == bookingID {
			delete(s.seats, code)
		}
	}

	delete(s.holds, bookingID)

	l.mu.Lock()
	delete(l.bookingIndex, bookingID)
	l.mu.Unlock()
}

func sameSeats(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for _, code := range b {
		if !slices.Contains(a, code) {
			return false
		}
	}

	return true
}
