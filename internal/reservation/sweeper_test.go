package reservation

import (
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

func (s *ReservationTestSuite) TestSweepExpiresElapsedBookings() {
	stale := s.reserve(testUserID, "A1")
	s.clock.Advance(90 * time.Second)
	fresh := s.reserve(otherUserID, "A2")
	s.clock.Advance(45 * time.Second)

	sweeper := NewExpirySweeper(s.holds, SweeperConfig{BatchSize: 10})

	s.Equal(1, sweeper.Sweep(s.ctx))

	got, err := s.bookings.GetByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingStatusExpired, got.Status)

	got, err = s.bookings.GetByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(domain.BookingStatusPending, got.Status)

	s.Equal(map[string]domain.SeatStatus{"A2": domain.SeatHeld}, s.seatStatuses())

	stats := sweeper.Stats()
	s.Equal(int64(1), stats.TotalExpired)
	s.Equal(1, stats.LastExpiredCount)
	s.False(stats.Running)

	s.Equal(0, sweeper.Sweep(s.ctx))
}

func (s *ReservationTestSuite) TestSweepSkipsResolvedBookings() {
	booking := s.reserve(testUserID, "B1")
	_, err := s.machine.MarkPaid(s.ctx, booking.ID, domain.PaymentMethodCounter, "")
	s.Require().NoError(err)

	s.clock.Advance(time.Hour)

	sweeper := NewExpirySweeper(s.holds, SweeperConfig{})
	s.Equal(0, sweeper.Sweep(s.ctx))
	s.Equal(map[string]domain.SeatStatus{"B1": domain.SeatBooked}, s.seatStatuses())
}

func (s *ReservationTestSuite) TestSweeperStartStop() {
	s.reserve(testUserID, "B2")
	s.clock.Advance(time.Hour)

	sweeper := NewExpirySweeper(s.holds, SweeperConfig{Interval: 10 * time.Millisecond})

	s.Require().NoError(sweeper.Start(s.ctx))
	s.Error(sweeper.Start(s.ctx))
	s.True(sweeper.Stats().Running)

	s.Eventually(func() bool {
		return sweeper.Stats().TotalExpired == 1
	}, time.Second, 10*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	s.False(sweeper.Stats().Running)
}
