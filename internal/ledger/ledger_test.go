package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/suite"
)

const testScreeningID = 7

// fakeClock is shared by a ledger under test and the test itself.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// LedgerSuite holds the behaviour every domain.SeatLedger must have. newLedger is
// set by the concrete test entry point.
type LedgerSuite struct {
	suite.Suite
	newLedger func(clock *fakeClock) domain.SeatLedger
	clock     *fakeClock
	ledger    domain.SeatLedger
	ctx       context.Context
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.ledger = s.newLedger(s.clock)
}

func (s *LedgerSuite) hold(bookingID uuid.UUID, seats ...string) domain.Hold {
	return domain.Hold{
		BookingID:   bookingID,
		ScreeningID: testScreeningID,
		SeatCodes:   seats,
		ExpiresAt:   s.clock.Now().Add(2 * time.Minute),
	}
}

func (s *LedgerSuite) seats() map[string]domain.SeatStatus {
	seats, err := s.ledger.QuerySeats(s.ctx, testScreeningID)
	s.Require().NoError(err)
	return seats
}

func (s *LedgerSuite) TestTryReserveHoldsAllSeats() {
	bookingID := uuid.New()

	hold, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "A1", "A2"))

	s.Require().NoError(err)
	s.Equal(bookingID, hold.BookingID)
	s.Equal(map[string]domain.SeatStatus{"A1": domain.SeatHeld, "A2": domain.SeatHeld}, s.seats())
}

func (s *LedgerSuite) TestTryReserveIsAllOrNothing() {
	_, err := s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "A2"))
	s.Require().NoError(err)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "A1", "A2", "A3"))

	var conflict *domain.SeatConflictError
	s.Require().ErrorAs(err, &conflict)
	s.ErrorIs(err, domain.ErrSeatConflict)
	s.Equal([]string{"A2"}, conflict.SeatCodes)
	s.Equal(map[string]domain.SeatStatus{"A2": domain.SeatHeld}, s.seats())
}

func (s *LedgerSuite) TestConcurrentReservationsOnlyOneWins() {
	const contenders = 20

	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "B4", "B5"))
			if err == nil {
				winners.Add(1)
				return
			}
			if _, ok := err.(*domain.SeatConflictError); ok {
				conflicts.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	s.Equal(int32(1), winners.Load())
	s.Equal(int32(contenders-1), conflicts.Load())
}

func (s *LedgerSuite) TestTryReserveReplacesExistingHold() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "A1", "A2"))
	s.Require().NoError(err)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(bookingID, "A2", "A3"))
	s.Require().NoError(err)

	s.Equal(map[string]domain.SeatStatus{"A2": domain.SeatHeld, "A3": domain.SeatHeld}, s.seats())

	hold, err := s.ledger.GetHold(s.ctx, bookingID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"A2", "A3"}, hold.SeatCodes)
}

func (s *LedgerSuite) TestFailedReplaceKeepsOriginalHold() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "A1", "A2"))
	s.Require().NoError(err)
	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "A5"))
	s.Require().NoError(err)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(bookingID, "A4", "A5"))
	s.Require().ErrorIs(err, domain.ErrSeatConflict)

	hold, err := s.ledger.GetHold(s.ctx, bookingID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"A1", "A2"}, hold.SeatCodes)
	s.Equal(domain.SeatHeld, s.seats()["A1"])
	s.NotContains(s.seats(), "A4")
}

func (s *LedgerSuite) TestCommitIsIdempotent() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "C1", "C2"))
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Commit(s.ctx, bookingID, []string{"C2", "C1"}))
	s.Require().NoError(s.ledger.Commit(s.ctx, bookingID, []string{"C1", "C2"}))

	s.Equal(map[string]domain.SeatStatus{"C1": domain.SeatBooked, "C2": domain.SeatBooked}, s.seats())

	s.clock.Advance(time.Hour)

	hold, err := s.ledger.GetHold(s.ctx, bookingID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"C1", "C2"}, hold.SeatCodes)
}

func (s *LedgerSuite) TestCommitWithoutHold() {
	err := s.ledger.Commit(s.ctx, uuid.New(), []string{"C1"})

	s.ErrorIs(err, domain.ErrHoldNotFound)
}

func (s *LedgerSuite) TestCommitAfterHoldWindow() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "C3"))
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Minute)

	err = s.ledger.Commit(s.ctx, bookingID, []string{"C3"})
	s.ErrorIs(err, domain.ErrHoldNotFound)
	s.Empty(s.seats())
}

func (s *LedgerSuite) TestCommitRejectsDifferentSeats() {
	tests := []struct {
		name  string
		seats []string
	}{
		{name: "should reject fewer seats", seats: []string{"C4"}},
		{name: "should reject more seats", seats: []string{"C4", "C5", "C6"}},
		{name: "should reject other seats", seats: []string{"C4", "C6"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			bookingID := uuid.New()
			_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "C4", "C5"))
			s.Require().NoError(err)

			err = s.ledger.Commit(s.ctx, bookingID, tt.seats)

			s.ErrorIs(err, domain.ErrHoldMismatch)
			s.Equal(map[string]domain.SeatStatus{"C4": domain.SeatHeld, "C5": domain.SeatHeld}, s.seats())
		})
	}
}

func (s *LedgerSuite) TestCommittedHoldCannotBeReplaced() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "C7"))
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.Commit(s.ctx, bookingID, []string{"C7"}))

	_, err = s.ledger.TryReserve(s.ctx, s.hold(bookingID, "C8"))

	s.ErrorIs(err, domain.ErrAlreadyResolved)
	s.Equal(map[string]domain.SeatStatus{"C7": domain.SeatBooked}, s.seats())
}

func (s *LedgerSuite) TestBookedSeatsCannotBeReserved() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "D1"))
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.Commit(s.ctx, bookingID, []string{"D1"}))

	s.clock.Advance(time.Hour)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "D1"))
	s.ErrorIs(err, domain.ErrSeatConflict)
}

func (s *LedgerSuite) TestReleaseIsIdempotent() {
	held := uuid.New()
	other := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(held, "E1", "E2"))
	s.Require().NoError(err)
	_, err = s.ledger.TryReserve(s.ctx, s.hold(other, "E3"))
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Release(s.ctx, held))
	s.Require().NoError(s.ledger.Release(s.ctx, held))
	s.Require().NoError(s.ledger.Release(s.ctx, uuid.New()))

	s.Equal(map[string]domain.SeatStatus{"E3": domain.SeatHeld}, s.seats())

	_, err = s.ledger.GetHold(s.ctx, held)
	s.ErrorIs(err, domain.ErrHoldNotFound)
}

func (s *LedgerSuite) TestReleaseFreesCommittedSeats() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "E4", "E5"))
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.Commit(s.ctx, bookingID, []string{"E4", "E5"}))

	s.Require().NoError(s.ledger.Release(s.ctx, bookingID))

	s.Empty(s.seats())

	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "E4"))
	s.NoError(err)
}

func (s *LedgerSuite) TestExpiredHoldsAreReleasedOnRead() {
	bookingID := uuid.New()

	_, err := s.ledger.TryReserve(s.ctx, s.hold(bookingID, "F1", "F2"))
	s.Require().NoError(err)

	s.clock.Advance(2*time.Minute + time.Second)

	s.Empty(s.seats())

	_, err = s.ledger.GetHold(s.ctx, bookingID)
	s.ErrorIs(err, domain.ErrHoldNotFound)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "F1"))
	s.NoError(err)
}

func (s *LedgerSuite) TestExpiredHoldDoesNotBlockOthersBeforeRead() {
	_, err := s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "G1"))
	s.Require().NoError(err)

	s.clock.Advance(3 * time.Minute)

	_, err = s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "G1"))
	s.NoError(err)
}

func (s *LedgerSuite) TestScreeningsAreIndependent() {
	_, err := s.ledger.TryReserve(s.ctx, s.hold(uuid.New(), "H1"))
	s.Require().NoError(err)

	other := s.hold(uuid.New(), "H1")
	other.ScreeningID = testScreeningID + 1

	_, err = s.ledger.TryReserve(s.ctx, other)
	s.NoError(err)
}

func TestMemoryLedger(t *testing.T) {
	suite.Run(t, &LedgerSuite{
		newLedger: func(clock *fakeClock) domain.SeatLedger {
			return NewMemoryLedger(clock.Now)
		},
	})
}
