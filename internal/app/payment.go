package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/payment"
)

const maxWebhookBytes = 65536

func (app *Application) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	bookingID, err := readUUIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.ConfirmPaymentRequest

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

	result, err := app.payments.ConfirmPayment(r.Context(), payment.ConfirmInput{
		BookingID: bookingID,
		UserID:    app.contextGetUserId(r),
		Method:    domain.PaymentMethod(input.Method),
		ClientIP:  clientIP(r),
	})
	if err != nil {
		logger.Warn("payment confirmation rejected", "bookingId", bookingID, "method", input.Method, "error", err)
		app.bookingErrorResponse(w, r, err)
		return
	}

	var resp api.ConfirmPaymentResponse

	if result.RedirectURL != "" {
		logger.Info("redirecting to payment gateway", "bookingId", bookingID, "method", input.Method)
		resp.RedirectUrl = result.RedirectURL
	} else {
		booking := toBookingResponse(result.Booking)
		resp.Booking = &booking
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// PaymentReturnHandler receives the customer redirected back by a gateway.
func (app *Application) PaymentReturnHandler(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(chi.URLParam(r, "method"))

	outcome, err := app.payments.HandleGatewayReturn(r.Context(), method, domain.GatewayCallback{
		Params: r.URL.Query(),
	})
	if err != nil {
		if errors.Is(err, payment.ErrIgnoredEvent) {
			app.errorResponse(w, r, http.StatusAccepted, "The payment is still being processed")
			return
		}

		app.contextGetLogger(r).Warn("gateway return rejected", "method", method, "error", err)
		app.bookingErrorResponse(w, r, err)
		return
	}

	resp := api.PaymentResultResponse{
		BookingId:  outcome.BookingID,
		Status:     string(outcome.Status),
		Success:    outcome.Success,
		ReasonCode: outcome.ReasonCode,
		Message:    outcome.Message,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// StripeWebhookHandler acknowledges every verified event Stripe does not need to
// redeliver. Only unexpected failures answer with a 5xx so Stripe retries.
func (app *Application) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		app.badRequestResponse(w, r, errors.New("failed to read request body"))
		return
	}

	outcome, err := app.payments.HandleGatewayReturn(r.Context(), domain.PaymentMethodStripe, domain.GatewayCallback{
		Payload:   payload,
		Signature: r.Header.Get("Stripe-Signature"),
	})

	switch {
	case err == nil:
		logger.Info("stripe webhook processed", "bookingId", outcome.BookingID, "status", outcome.Status)
	case errors.Is(err, payment.ErrIgnoredEvent):
		logger.Debug("stripe webhook ignored")
	case errors.Is(err, domain.ErrAlreadyResolved):
		logger.Warn("stripe webhook for a resolved booking", "error", err)
	default:
		logger.Error("stripe webhook failed", "error", err)
		app.bookingErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
