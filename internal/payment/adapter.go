// Package payment turns payment gateway round trips into booking transitions.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/reservation"
)

const reasonAmountMismatch = "charged amount does not match the booking total"

type ConfirmInput struct {
	BookingID uuid.UUID
	UserID    int
	Method    domain.PaymentMethod
	ClientIP  string
}

// ConfirmResult holds either a gateway URL the customer must visit or, for
// methods settled on the spot, the paid booking.
type ConfirmResult struct {
	RedirectURL string
	Booking     *domain.Booking
}

type Adapter struct {
	machine  *reservation.StateMachine
	gateways map[domain.PaymentMethod]domain.PaymentGateway
	currency string
	logger   *slog.Logger
}

func NewAdapter(
	machine *reservation.StateMachine,
	currency string,
	logger *slog.Logger,
	gateways ...domain.PaymentGateway) *Adapter {

	a := &Adapter{
		machine:  machine,
		gateways: make(map[domain.PaymentMethod]domain.PaymentGateway, len(gateways)),
		currency: currency,
		logger:   logger,
	}

	for _, gw := range gateways {
		a.gateways[gw.Method()] = gw
	}

	return a
}

func (a *Adapter) gateway(method domain.PaymentMethod) (domain.PaymentGateway, error) {
	gw, ok := a.gateways[method]
	if !ok {
		return nil, domain.ErrUnsupportedPaymentMethod
	}

	return gw, nil
}

// BuildPaymentRequest asks the method's gateway for a redirect URL. The booking is
// not modified.
func (a *Adapter) BuildPaymentRequest(
	ctx context.Context,
	booking *domain.Booking,
	method domain.PaymentMethod,
	clientIP string) (string, error) {

	gw, err := a.gateway(method)
	if err != nil {
		return "", err
	}

	return gw.BuildRedirectURL(ctx, domain.PaymentRequest{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Amount:    booking.TotalPrice,
		Currency:  a.currency,
		OrderInfo: fmt.Sprintf("Booking %s, %d seat(s)", booking.ID, len(booking.SeatCodes)),
		ClientIP:  clientIP,
	})
}

// ConfirmPayment starts paying for a pending booking. Counter payments are settled
// at once; every other method returns the gateway URL.
func (a *Adapter) ConfirmPayment(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if input.Method != domain.PaymentMethodCounter {
		if _, err := a.gateway(input.Method); err != nil {
			return nil, err
		}
	}

	booking, err := a.machine.PrepareCheckout(ctx, input.BookingID, input.UserID)
	if err != nil {
		return nil, err
	}

	if input.Method == domain.PaymentMethodCounter {
		paid, err := a.machine.MarkPaid(ctx, booking.ID, domain.PaymentMethodCounter, "counter-"+booking.ID.String())
		if err != nil {
			return nil, err
		}

		return &ConfirmResult{Booking: paid}, nil
	}

	redirectURL, err := a.BuildPaymentRequest(ctx, booking, input.Method, input.ClientIP)
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{RedirectURL: redirectURL, Booking: booking}, nil
}

// HandleGatewayReturn verifies a gateway callback and settles the booking. A
// callback delivered again yields the same outcome without further changes.
func (a *Adapter) HandleGatewayReturn(
	ctx context.Context,
	method domain.PaymentMethod,
	cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {

	gw, err := a.gateway(method)
	if err != nil {
		return nil, err
	}

	outcome, err := gw.VerifyCallback(ctx, cb)
	if err != nil {
		return nil, err
	}

	logger := a.logger.With("bookingId", outcome.BookingID, "method", method, "reasonCode", outcome.ReasonCode)

	var booking *domain.Booking

	if outcome.Success {
		booking, err = a.settle(ctx, method, outcome)
	} else {
		if outcome.Message == "" {
			outcome.Message = domain.ErrGatewayFailure.Error()
		}

		booking, err = a.machine.Fail(ctx, outcome.BookingID, outcome.Message)
	}

	if booking != nil {
		outcome.Status = booking.Status
	}

	if err != nil {
		var transitionErr *domain.InvalidTransitionError
		if !errors.As(err, &transitionErr) {
			return nil, err
		}

		if !outcome.Success && transitionErr.Current == domain.BookingStatusFailed {
			return outcome, nil
		}

		if outcome.Success {
			logger.WarnContext(ctx, "payment received for a booking that is no longer payable, refund required",
				"status", transitionErr.Current, "transactionRef", outcome.TransactionRef)
		}

		outcome.Status = transitionErr.Current
		return outcome, err
	}

	logger.InfoContext(ctx, "payment callback processed", "status", outcome.Status)

	return outcome, nil
}

// settle marks the booking paid unless the gateway charged a different amount,
// in which case the payment is treated as failed.
func (a *Adapter) settle(
	ctx context.Context,
	method domain.PaymentMethod,
	outcome *domain.GatewayOutcome) (*domain.Booking, error) {

	if !outcome.Amount.IsZero() {
		booking, err := a.machine.Lookup(ctx, outcome.BookingID)
		if err != nil {
			return nil, err
		}

		if booking.Status == domain.BookingStatusPending && !booking.TotalPrice.Equal(outcome.Amount) {
			a.logger.WarnContext(ctx, "gateway amount mismatch",
				"bookingId", booking.ID, "expected", booking.TotalPrice, "charged", outcome.Amount)

			outcome.Success = false
			outcome.Message = reasonAmountMismatch

			return a.machine.Fail(ctx, booking.ID, reasonAmountMismatch)
		}
	}

	return a.machine.MarkPaid(ctx, outcome.BookingID, method, outcome.TransactionRef)
}
