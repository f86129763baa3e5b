package app

import (
	"math"
	"net/http"
	"time"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/reservation"
)

func (app *Application) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	screeningID, err := readIntParam(r, "screeningId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.CreateBookingRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	booking, err := app.holds.Reserve(r.Context(), reservation.ReserveInput{
		UserID:      app.contextGetUserId(r),
		ScreeningID: screeningID,
		SeatCodes:   input.SeatCodes,
	})
	if err != nil {
		logger.Warn("seat reservation rejected", "screeningId", screeningID, "seatCodes", input.SeatCodes, "error", err)
		app.bookingErrorResponse(w, r, err)
		return
	}

	logger.Info("seats held", "bookingId", booking.ID, "seatCodes", booking.SeatCodes, "holdExpiresAt", booking.HoldExpiresAt)

	err = app.writeJSON(w, http.StatusCreated, app.holdResponse(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	booking, err := app.bookings.Get(r.Context(), bookingID, app.contextGetUserId(r))
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toBookingResponse(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) UpdateSeatsHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.UpdateSeatsRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	booking, err := app.bookings.UpdateSeats(r.Context(), bookingID, app.contextGetUserId(r), input.SeatCodes)
	if err != nil {
		app.contextGetLogger(r).Warn("seat update rejected", "bookingId", bookingID, "error", err)
		app.bookingErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, app.holdResponse(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) ApplyPromotionHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.ApplyPromotionRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	booking, err := app.bookings.ApplyPromotion(r.Context(), bookingID, app.contextGetUserId(r), input.Code)
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toBookingResponse(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	booking, err := app.bookings.Cancel(r.Context(), bookingID, app.contextGetUserId(r))
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	app.contextGetLogger(r).Info("booking cancelled", "bookingId", booking.ID)

	resp := api.BookingStatusResponse{
		BookingId: booking.ID,
		Status:    string(booking.Status),
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) holdResponse(booking *domain.Booking) api.BookingHoldResponse {
	return api.BookingHoldResponse{
		BookingId:     booking.ID,
		HoldExpiresAt: booking.HoldExpiresAt,
		HoldTime:      remainingSeconds(booking.RemainingHold(app.now())),
		Booking:       toBookingResponse(booking),
	}
}

func remainingSeconds(left time.Duration) int {
	return int(math.Ceil(left.Seconds()))
}

func toBookingResponse(b *domain.Booking) api.Booking {
	resp := api.Booking{
		Id:            b.ID,
		ScreeningId:   b.ScreeningID,
		SeatCodes:     b.SeatCodes,
		BasePrice:     b.BasePrice,
		Discount:      b.Discount,
		TotalPrice:    b.TotalPrice,
		PromoCode:     b.PromoCode,
		Status:        string(b.Status),
		StatusReason:  b.StatusReason,
		HoldExpiresAt: b.HoldExpiresAt,
		CreatedAt:     b.CreatedAt,
	}

	if b.PaymentMethod != nil {
		method := string(*b.PaymentMethod)
		resp.PaymentMethod = &method
	}

	return resp
}
