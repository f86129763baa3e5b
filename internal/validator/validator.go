package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

var (
	seatCodeRgx  = regexp.MustCompile(`^[A-Z]{1,2}[0-9]{1,3}$`)
	promoCodeRgx = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("seat_code", validateSeatCode)
	validator.RegisterValidation("promo_code", validatePromoCode)
	validator.RegisterValidation("payment_method", validatePaymentMethod)

	return validator
}

// validateSeatCode accepts a row of one or two letters followed by the seat
// number, e.g. "A1" or "AB12", in any letter case.
func validateSeatCode(fl validator.FieldLevel) bool {
	code := strings.ToUpper(strings.TrimSpace(fl.Field().String()))

	return seatCodeRgx.MatchString(code)
}

func validatePromoCode(fl validator.FieldLevel) bool {
	code := strings.ToUpper(strings.TrimSpace(fl.Field().String()))

	return promoCodeRgx.MatchString(code)
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	switch domain.PaymentMethod(fl.Field().String()) {
	case domain.PaymentMethodVNPay, domain.PaymentMethodStripe, domain.PaymentMethodCounter:
		return true
	default:
		return false
	}
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", err.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s item(s)", err.Param())
	case "seat_code":
		return "must be a seat code such as A1"
	case "promo_code":
		return "must be 3 to 32 letters, digits, dashes or underscores"
	case "payment_method":
		return "must be one of vnpay, stripe or counter"
	default:
		return "is invalid"
	}
}
