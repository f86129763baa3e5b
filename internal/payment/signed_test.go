package payment

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashSecret = "s3cr3t"

func newTestSignedGateway() *SignedGateway {
	return NewSignedGateway(SignedGatewayConfig{
		TerminalCode: "CINEX001",
		HashSecret:   testHashSecret,
		PayURL:       "https://sandbox.gateway.test/paymentv2/vpcpay.html",
		ReturnURL:    "https://cinex.test/payments/vnpay/return",
	}, func() time.Time {
		return time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	})
}

// signedCallback builds the query string the gateway sends back.
func signedCallback(g *SignedGateway, params url.Values) url.Values {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set(paramSecureHash, g.sign(encodeSorted(params)))
	return signed
}

func TestSignedGatewayBuildRedirectURL(t *testing.T) {
	g := newTestSignedGateway()
	bookingID := uuid.New()

	redirect, err := g.BuildRedirectURL(context.Background(), domain.PaymentRequest{
		BookingID: bookingID,
		Amount:    decimal.NewFromInt(160000),
		Currency:  "vnd",
		OrderInfo: "Booking for 2 seats",
		ClientIP:  "10.0.0.1",
	})
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "sandbox.gateway.test", u.Host)

	q := u.Query()
	assert.Equal(t, "16000000", q.Get("vnp_Amount"))
	assert.Equal(t, "VND", q.Get("vnp_CurrCode"))
	assert.Equal(t, bookingID.String(), q.Get("vnp_TxnRef"))
	assert.Equal(t, "20250601180000", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20250601181500", q.Get("vnp_ExpireDate"))

	rawQuery := u.RawQuery
	hashAt := strings.Index(rawQuery, "&"+paramSecureHash+"=")
	require.Positive(t, hashAt)
	assert.Equal(t, g.sign(rawQuery[:hashAt]), q.Get(paramSecureHash))
}

func TestSignedGatewayVerifyCallback(t *testing.T) {
	g := newTestSignedGateway()
	bookingID := uuid.New()

	base := func(code string) url.Values {
		return url.Values{
			"vnp_TxnRef":            {bookingID.String()},
			"vnp_Amount":            {"16000000"},
			"vnp_ResponseCode":      {code},
			"vnp_TransactionStatus": {code},
			"vnp_TransactionNo":     {"14012345"},
			"vnp_TmnCode":           {"CINEX001"},
		}
	}

	tests := []struct {
		name        string
		params      url.Values
		wantErr     error
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "should accept a signed success callback",
			params:      signedCallback(g, base("00")),
			wantSuccess: true,
		},
		{
			name:        "should report a customer cancellation",
			params:      signedCallback(g, base("24")),
			wantMessage: "Payment was cancelled by the customer",
		},
		{
			name:    "should reject a callback without signature",
			params:  base("00"),
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "should reject a tampered amount",
			params: func() url.Values {
				p := signedCallback(g, base("00"))
				p.Set("vnp_Amount", "100")
				return p
			}(),
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "should reject a signature made with another secret",
			params: func() url.Values {
				other := NewSignedGateway(SignedGatewayConfig{HashSecret: "other"}, nil)
				return signedCallback(other, base("00"))
			}(),
			wantErr: domain.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := g.VerifyCallback(context.Background(), domain.GatewayCallback{Params: tt.params})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, bookingID, outcome.BookingID)
			assert.Equal(t, tt.wantSuccess, outcome.Success)
			assert.Equal(t, tt.wantMessage, outcome.Message)
			assert.Equal(t, "14012345", outcome.TransactionRef)
			assert.True(t, decimal.NewFromInt(160000).Equal(outcome.Amount))
		})
	}
}
