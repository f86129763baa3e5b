package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	signedGatewayVersion = "2.1.0"
	signedTimeLayout     = "20060102150405"

	responseCodeSuccess = "00"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
)

// signedGatewayMessages explains the gateway's response codes to customers.
var signedGatewayMessages = map[string]string{
	"07": "Payment was captured but flagged as suspicious",
	"09": "Card or account is not registered for internet banking",
	"10": "Card or account verification failed too many times",
	"11": "Payment window has expired",
	"12": "Card or account is locked",
	"13": "Wrong one-time password",
	"24": "Payment was cancelled by the customer",
	"51": "Insufficient balance",
	"65": "Daily transaction limit exceeded",
	"75": "Bank is under maintenance",
	"79": "Wrong payment password entered too many times",
	"99": "Unknown gateway error",
}

type SignedGatewayConfig struct {
	TerminalCode string
	HashSecret   string
	PayURL       string
	ReturnURL    string
	Locale       string
	// Location is the gateway's local time zone used for timestamps.
	Location *time.Location
	// Timeout is how long the gateway keeps the payment page open.
	Timeout time.Duration
}

// SignedGateway redirects the customer to a bank gateway whose requests and
// responses are query strings signed with HMAC-SHA512.
type SignedGateway struct {
	config SignedGatewayConfig
	now    func() time.Time
}

func NewSignedGateway(config SignedGatewayConfig, now func() time.Time) *SignedGateway {
	if config.Locale == "" {
		config.Locale = "vn"
	}
	if config.Location == nil {
		config.Location = time.FixedZone("ICT", 7*60*60)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}

	return &SignedGateway{config: config, now: now}
}

func (g *SignedGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodVNPay
}

func (g *SignedGateway) BuildRedirectURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	if g.config.PayURL == "" || g.config.HashSecret == "" {
		return "", fmt.Errorf("signed gateway is not configured")
	}

	now := g.now().In(g.config.Location)

	params := url.Values{}
	params.Set("vnp_Version", signedGatewayVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.config.TerminalCode)
	params.Set("vnp_Amount", req.Amount.Mul(decimal.NewFromInt(100)).Round(0).String())
	params.Set("vnp_CurrCode", strings.ToUpper(req.Currency))
	params.Set("vnp_TxnRef", req.BookingID.String())
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", g.config.Locale)
	params.Set("vnp_ReturnUrl", g.config.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", now.Format(signedTimeLayout))
	params.Set("vnp_ExpireDate", now.Add(g.config.Timeout).Format(signedTimeLayout))

	query := encodeSorted(params)

	return fmt.Sprintf("%s?%s&%s=%s", g.config.PayURL, query, paramSecureHash, g.sign(query)), nil
}

func (g *SignedGateway) VerifyCallback(ctx context.Context, cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {
	params := url.Values{}
	for key, values := range cb.Params {
		if strings.HasPrefix(key, "vnp_") && key != paramSecureHash && key != paramSecureHashType {
			params[key] = values
		}
	}

	signature := cb.Params.Get(paramSecureHash)
	if signature == "" {
		return nil, domain.ErrInvalidSignature
	}

	expected := g.sign(encodeSorted(params))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil, domain.ErrInvalidSignature
	}

	bookingID, err := uuid.Parse(params.Get("vnp_TxnRef"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transaction reference", domain.ErrInvalidSignature)
	}

	amount, err := decimal.NewFromString(params.Get("vnp_Amount"))
	if err != nil {
		amount = decimal.Zero
	}

	code := params.Get("vnp_ResponseCode")
	status := params.Get("vnp_TransactionStatus")

	outcome := &domain.GatewayOutcome{
		BookingID:      bookingID,
		Success:        code == responseCodeSuccess && (status == "" || status == responseCodeSuccess),
		ReasonCode:     code,
		TransactionRef: params.Get("vnp_TransactionNo"),
		Amount:         amount.Div(decimal.NewFromInt(100)),
	}

	if !outcome.Success {
		outcome.Message = signedGatewayMessages[code]
	}

	return outcome, nil
}

func (g *SignedGateway) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(g.config.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeSorted encodes params in key order, which is the form both sides sign.
func encodeSorted(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := params.Get(key)
		if value == "" {
			continue
		}

		parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	return strings.Join(parts, "&")
}
