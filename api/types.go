// Package api holds the JSON request and response bodies of the booking HTTP API.
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	ErrorResponse
	ValidationErrors []ValidationError `json:"validationErrors"`
}

// SeatConflictResponse lists the seats that could not be held.
type SeatConflictResponse struct {
	ErrorResponse
	SeatCodes []string `json:"seatCodes"`
}

type PromotionRejectedResponse struct {
	ErrorResponse
	Reason     string          `json:"reason"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type AlreadyResolvedResponse struct {
	ErrorResponse
	Status string `json:"status"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Storage     string `json:"storage"`
	HoldTime    int    `json:"holdTime"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
)

type Seat struct {
	Code   string     `json:"code"`
	Status SeatStatus `json:"status"`
}

type SeatMapResponse struct {
	ScreeningId int    `json:"screeningId"`
	Seats       []Seat `json:"seats"`
}

type CreateBookingRequest struct {
	SeatCodes []string `json:"seatCodes" validate:"required,min=1,max=10,dive,seat_code"`
}

type UpdateSeatsRequest struct {
	SeatCodes []string `json:"seatCodes" validate:"required,min=1,max=10,dive,seat_code"`
}

type ApplyPromotionRequest struct {
	Code string `json:"code" validate:"required,promo_code"`
}

type ConfirmPaymentRequest struct {
	Method string `json:"method" validate:"required,payment_method"`
}

type Booking struct {
	Id            uuid.UUID       `json:"id"`
	ScreeningId   int             `json:"screeningId"`
	SeatCodes     []string        `json:"seatCodes"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	Discount      decimal.Decimal `json:"discount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	PromoCode     *string         `json:"promoCode,omitempty"`
	Status        string          `json:"status"`
	StatusReason  string          `json:"statusReason,omitempty"`
	PaymentMethod *string         `json:"paymentMethod,omitempty"`
	HoldExpiresAt time.Time       `json:"holdExpiresAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BookingHoldResponse is returned whenever the held seats change. HoldTime is the
// number of seconds left before the hold expires.
type BookingHoldResponse struct {
	BookingId     uuid.UUID `json:"bookingId"`
	HoldExpiresAt time.Time `json:"holdExpiresAt"`
	HoldTime      int       `json:"holdTime"`
	Booking       Booking   `json:"booking"`
}

type BookingStatusResponse struct {
	BookingId uuid.UUID `json:"bookingId"`
	Status    string    `json:"status"`
}

type ConfirmPaymentResponse struct {
	RedirectUrl string   `json:"redirectUrl,omitempty"`
	Booking     *Booking `json:"booking,omitempty"`
}

type PaymentResultResponse struct {
	BookingId  uuid.UUID `json:"bookingId"`
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	ReasonCode string    `json:"reasonCode,omitempty"`
	Message    string    `json:"message,omitempty"`
}
