package app

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/stretchr/testify/suite"
)

type SeatsTestSuite struct {
	suite.Suite
	env *testEnv
}

func (s *SeatsTestSuite) SetupTest() {
	s.env = newTestApplication()
}

func TestSeatsSuite(t *testing.T) {
	suite.Run(t, new(SeatsTestSuite))
}

func (s *SeatsTestSuite) TestGetSeatMapHandler() {
	tests := []struct {
		name           string
		url            string
		setup          func()
		wantStatus     int
		wantErrMessage string
		wantResponse   *api.SeatMapResponse
	}{
		{
			name:         "should return every seat as available",
			url:          "/screenings/1/seats",
			wantStatus:   http.StatusOK,
			wantResponse: seatMap(map[string]api.SeatStatus{}),
		},
		{
			name: "should show held and booked seats",
			url:  "/screenings/1/seats",
			setup: func() {
				s.env.reserve(s.T(), "A1", "A2")

				paid := s.env.reserve(s.T(), "B3")
				w := s.env.do(s.T(), http.MethodPost, fmt.Sprintf("/bookings/%s/payment", paid.BookingId),
					api.ConfirmPaymentRequest{Method: "counter"}, testUserId)
				s.Require().Equal(http.StatusOK, w.Code)
			},
			wantStatus: http.StatusOK,
			wantResponse: seatMap(map[string]api.SeatStatus{
				"A1": api.SeatHeld,
				"A2": api.SeatHeld,
				"B3": api.SeatBooked,
			}),
		},
		{
			name: "should release seats of a cancelled booking",
			url:  "/screenings/1/seats",
			setup: func() {
				booking := s.env.reserve(s.T(), "A1")
				w := s.env.do(s.T(), http.MethodPost, fmt.Sprintf("/bookings/%s/cancel", booking.BookingId), nil, testUserId)
				s.Require().Equal(http.StatusOK, w.Code)
			},
			wantStatus:   http.StatusOK,
			wantResponse: seatMap(map[string]api.SeatStatus{}),
		},
		{
			name:           "should fail when screening id is invalid",
			url:            "/screenings/0/seats",
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "screeningId must be a positive integer",
		},
		{
			name:           "should fail when screening does not exist",
			url:            "/screenings/42/seats",
			wantStatus:     http.StatusNotFound,
			wantErrMessage: ErrNotFound,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			if tt.setup != nil {
				tt.setup()
			}

			w := s.env.do(s.T(), http.MethodGet, tt.url, nil, 0)
			s.Equal(tt.wantStatus, w.Code)

			if tt.wantResponse != nil {
				var resp api.SeatMapResponse
				decodeBody(s.T(), w, &resp)

				diff := cmp.Diff(*tt.wantResponse, resp)
				s.Empty(diff, "Response mismatch (-want +got):\n%s", diff)
				return
			}

			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: tt.wantErrMessage,
			})
		})
	}
}

func seatMap(statuses map[string]api.SeatStatus) *api.SeatMapResponse {
	resp := &api.SeatMapResponse{ScreeningId: testScreeningId}

	for _, code := range []string{"A1", "A2", "A3", "B1", "B2", "B3"} {
		status, ok := statuses[code]
		if !ok {
			status = api.SeatAvailable
		}

		resp.Seats = append(resp.Seats, api.Seat{Code: code, Status: status})
	}

	return resp
}
