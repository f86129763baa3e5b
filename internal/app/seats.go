package app

import (
	"net/http"

	"github.com/metinatakli/cinex-booking/api"
)

func (app *Application) GetSeatMapHandler(w http.ResponseWriter, r *http.Request) {
	screeningID, err := readIntParam(r, "screeningId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	seatMap, err := app.holds.QuerySeats(r.Context(), screeningID)
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	resp := api.SeatMapResponse{
		ScreeningId: seatMap.ScreeningID,
		Seats:       make([]api.Seat, 0, len(seatMap.Seats)),
	}

	for _, seat := range seatMap.Seats {
		resp.Seats = append(resp.Seats, api.Seat{
			Code:   seat.Code,
			Status: api.SeatStatus(seat.Status),
		})
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
