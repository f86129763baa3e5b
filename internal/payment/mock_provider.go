package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// MockGateway stands in for a redirect gateway in development and tests. Its
// redirect URL points straight back at the return URL with the outcome encoded
// in the query: status=success completes the payment, anything else fails it.
type MockGateway struct {
	method    domain.PaymentMethod
	returnUrl string
}

func NewMockGateway(method domain.PaymentMethod, returnUrl string) *MockGateway {
	return &MockGateway{
		method:    method,
		returnUrl: returnUrl,
	}
}

func (m *MockGateway) Method() domain.PaymentMethod {
	return m.method
}

func (m *MockGateway) BuildRedirectURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	params := url.Values{}
	params.Set("booking_id", req.BookingID.String())
	params.Set("amount", req.Amount.String())
	params.Set("ref", "mock-"+req.BookingID.String())
	params.Set("status", "success")

	return fmt.Sprintf("%s?%s", m.returnUrl, params.Encode()), nil
}

func (m *MockGateway) VerifyCallback(ctx context.Context, cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {
	bookingID, err := uuid.Parse(cb.Params.Get("booking_id"))
	if err != nil {
		return nil, domain.ErrInvalidSignature
	}

	amount, err := decimal.NewFromString(cb.Params.Get("amount"))
	if err != nil {
		amount = decimal.Zero
	}

	outcome := &domain.GatewayOutcome{
		BookingID:      bookingID,
		Success:        cb.Params.Get("status") == "success",
		ReasonCode:     cb.Params.Get("status"),
		TransactionRef: cb.Params.Get("ref"),
		Amount:         amount,
	}

	if !outcome.Success {
		outcome.Message = cb.Params.Get("message")
	}

	return outcome, nil
}
