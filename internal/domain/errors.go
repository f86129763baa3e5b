package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRecordNotFound           = errors.New("record not found")
	ErrEditConflict             = errors.New("edit conflict")
	ErrSeatConflict             = errors.New("seat(s) are already held or booked")
	ErrUnknownSeat              = errors.New("seat(s) do not exist for the screening")
	ErrNoSeatsSelected          = errors.New("at least one seat must be selected")
	ErrHoldNotFound             = errors.New("hold not found or has expired")
	ErrHoldMismatch             = errors.New("held seats do not match the booking")
	ErrHoldExpired              = errors.New("your selections have expired, please select your seats again")
	ErrAlreadyResolved          = errors.New("booking is already resolved")
	ErrPromotionRejected        = errors.New("promotion rejected")
	ErrGatewayFailure           = errors.New("payment was not successful")
	ErrInvalidSignature         = errors.New("payment callback signature is invalid")
	ErrUnsupportedPaymentMethod = errors.New("payment method is not supported")
	ErrForbidden                = errors.New("booking does not belong to the current user")
)

// SeatConflictError lists the requested seats that are held or booked by another booking.
type SeatConflictError struct {
	SeatCodes []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSeatConflict.Error(), strings.Join(e.SeatCodes, ", "))
}

func (e *SeatConflictError) Unwrap() error {
	return ErrSeatConflict
}

// UnknownSeatError lists seat codes that are not part of the screening's room.
type UnknownSeatError struct {
	SeatCodes []string
}

func (e *UnknownSeatError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownSeat.Error(), strings.Join(e.SeatCodes, ", "))
}

func (e *UnknownSeatError) Unwrap() error {
	return ErrUnknownSeat
}

type PromotionRejectionReason string

const (
	PromotionNotFound   PromotionRejectionReason = "not_found"
	PromotionInactive   PromotionRejectionReason = "inactive"
	PromotionNotStarted PromotionRejectionReason = "not_started"
	PromotionEnded      PromotionRejectionReason = "expired"
	PromotionExhausted  PromotionRejectionReason = "exhausted"
)

// PromotionRejectedError carries the reason a promo code could not be applied and the
// undiscounted total the booking reverts to.
type PromotionRejectedError struct {
	Code   string
	Reason PromotionRejectionReason
	Total  decimal.Decimal
}

func (e *PromotionRejectedError) Error() string {
	return fmt.Sprintf("promotion %q rejected: %s", e.Code, e.Reason)
}

func (e *PromotionRejectedError) Unwrap() error {
	return ErrPromotionRejected
}

// InvalidTransitionError is returned when a booking that already reached a terminal
// status is asked to move again. Current holds the status that won.
type InvalidTransitionError struct {
	BookingID uuid.UUID
	Current   BookingStatus
	Attempted BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %s is already %s, cannot move to %s", e.BookingID, e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrAlreadyResolved
}

// GatewayFailureError is the gateway's own explanation for a declined payment.
type GatewayFailureError struct {
	Code    string
	Message string
}

func (e *GatewayFailureError) Error() string {
	if e.Message == "" {
		return ErrGatewayFailure.Error()
	}

	return fmt.Sprintf("%s: %s", ErrGatewayFailure.Error(), e.Message)
}

func (e *GatewayFailureError) Unwrap() error {
	return ErrGatewayFailure
}
