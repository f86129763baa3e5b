package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const metadataBookingID = "booking_id"

// ErrIgnoredEvent is returned for webhook events that do not settle a booking.
var ErrIgnoredEvent = errors.New("event does not affect any booking")

// zeroDecimalCurrencies are charged in whole units by Stripe.
var zeroDecimalCurrencies = map[string]bool{
	"vnd": true,
	"jpy": true,
	"krw": true,
}

type StripeGateway struct {
	successUrl    string
	cancelUrl     string
	webhookSecret string

	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeGateway(successUrl, cancelUrl, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		successUrl:    successUrl,
		cancelUrl:     cancelUrl,
		webhookSecret: webhookSecret,
		newSession:    session.New,
		getSession:    session.Get,
	}
}

func (s *StripeGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

func (s *StripeGateway) BuildRedirectURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	currency := strings.ToLower(req.Currency)

	lineItem := &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(toMinorUnits(req.Amount, currency)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.OrderInfo),
			},
		},
		Quantity: stripe.Int64(1),
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  []*stripe.CheckoutSessionLineItemParams{lineItem},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successUrl + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cancelUrl + "?session_id={CHECKOUT_SESSION_ID}"),
		Metadata: map[string]string{
			metadataBookingID: req.BookingID.String(),
			"user_id":         strconv.Itoa(req.UserID),
		},
		ClientReferenceID: stripe.String(req.BookingID.String()),
	}

	checkoutSession, err := s.newSession(params)
	if err != nil {
		return "", toGatewayFailure(err)
	}

	return checkoutSession.URL, nil
}

// VerifyCallback accepts either a signed webhook payload or the session id Stripe
// appends to the return URL. The latter is trusted only after fetching the
// session from Stripe.
func (s *StripeGateway) VerifyCallback(ctx context.Context, cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {
	if len(cb.Payload) > 0 {
		return s.verifyWebhook(cb)
	}

	sessionID := cb.Params.Get("session_id")
	if sessionID == "" {
		return nil, domain.ErrInvalidSignature
	}

	checkoutSession, err := s.getSession(sessionID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, domain.ErrInvalidSignature
		}

		return nil, toGatewayFailure(err)
	}

	outcome, err := sessionOutcome(checkoutSession)
	if err != nil {
		return nil, err
	}

	// A customer coming back before paying is not a failure yet; the session stays
	// usable until it expires.
	if !outcome.Success && checkoutSession.Status == stripe.CheckoutSessionStatusOpen {
		return nil, ErrIgnoredEvent
	}

	return outcome, nil
}

func (s *StripeGateway) verifyWebhook(cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {
	event, err := webhook.ConstructEvent(cb.Payload, cb.Signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return nil, ErrIgnoredEvent
	}

	var checkoutSession stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	outcome, err := sessionOutcome(&checkoutSession)
	if err != nil {
		return nil, err
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session before the money arrives.
		if !outcome.Success {
			return nil, ErrIgnoredEvent
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		outcome.Success = false
		outcome.ReasonCode = string(event.Type)
		outcome.Message = "Payment could not be completed"
	case stripe.EventTypeCheckoutSessionExpired:
		outcome.Success = false
		outcome.ReasonCode = string(event.Type)
		outcome.Message = "Payment window has expired"
	}

	return outcome, nil
}

func sessionOutcome(checkoutSession *stripe.CheckoutSession) (*domain.GatewayOutcome, error) {
	bookingID, err := uuid.Parse(checkoutSession.Metadata[metadataBookingID])
	if err != nil {
		return nil, fmt.Errorf("%w: checkout session %s has no booking", domain.ErrInvalidSignature, checkoutSession.ID)
	}

	outcome := &domain.GatewayOutcome{
		BookingID:      bookingID,
		Success:        checkoutSession.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		ReasonCode:     string(checkoutSession.PaymentStatus),
		TransactionRef: checkoutSession.ID,
		Amount:         fromMinorUnits(checkoutSession.AmountTotal, string(checkoutSession.Currency)),
	}

	return outcome, nil
}

func toGatewayFailure(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &domain.GatewayFailureError{Code: string(stripeErr.Code), Message: stripeErr.Msg}
	}

	return fmt.Errorf("stripe request failed: %w", err)
}

func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[currency] {
		return amount.Round(0).IntPart()
	}

	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}

	return decimal.New(amount, -2)
}
