package domain

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	// PaymentMethodVNPay redirects to the HMAC signed bank gateway.
	PaymentMethodVNPay PaymentMethod = "vnpay"
	// PaymentMethodStripe redirects to a Stripe Checkout session.
	PaymentMethodStripe PaymentMethod = "stripe"
	// PaymentMethodCounter is paid at the box office and confirmed immediately.
	PaymentMethodCounter PaymentMethod = "counter"
)

// IsRedirect reports whether the method completes through an external gateway.
func (m PaymentMethod) IsRedirect() bool {
	return m == PaymentMethodVNPay || m == PaymentMethodStripe
}

type PaymentRequest struct {
	BookingID uuid.UUID
	UserID    int
	Amount    decimal.Decimal
	Currency  string
	OrderInfo string
	ClientIP  string
}

// GatewayCallback is what a gateway sends back, either as redirect query
// parameters or as a signed back-channel payload.
type GatewayCallback struct {
	Params    url.Values
	Payload   []byte
	Signature string
}

// GatewayOutcome is the verified, gateway independent result of a callback.
type GatewayOutcome struct {
	BookingID      uuid.UUID
	Success        bool
	ReasonCode     string
	Message        string
	TransactionRef string
	// Amount is what the gateway reports as charged, zero when it does not say.
	Amount         decimal.Decimal
	Status         BookingStatus
}

type PaymentGateway interface {
	Method() PaymentMethod
	// BuildRedirectURL returns the signed URL the client is sent to. It must not
	// mutate any booking state.
	BuildRedirectURL(ctx context.Context, req PaymentRequest) (string, error)
	// VerifyCallback checks integrity and extracts the outcome. ErrInvalidSignature
	// is returned for tampered or unsigned callbacks.
	VerifyCallback(ctx context.Context, cb GatewayCallback) (*GatewayOutcome, error)
}
