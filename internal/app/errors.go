package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
)

const (
	ErrInternalServer    = "The server encountered a problem and could not process your request"
	ErrNotFound          = "The requested resource not found"
	ErrMethodNotAllowed  = "The method is not supported for this resource"
	ErrUnauthorized      = "You must be authenticated to access this resource"
	ErrForbidden         = "You do not have permission to access this resource"
	ErrFailedValidation  = "One or more fields have invalid values"
	ErrEditConflict      = "Unable to update the record due to an edit conflict, please try again"
	ErrSeatConflict      = "Some of the selected seats are no longer available"
	ErrAlreadyResolved   = "The booking is already resolved"
	ErrInvalidSignature  = "The payment callback could not be verified"
	ErrPaymentMethod     = "The payment method is not supported"
	ErrPromotionRejected = "The promotion code cannot be applied"
)

func (app *Application) logError(r *http.Request, err error) {
	app.contextGetLogger(r).Error(err.Error())
}

func (app *Application) errorEnvelope(r *http.Request, message string) api.ErrorResponse {
	return api.ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}
}

func (app *Application) writeError(w http.ResponseWriter, r *http.Request, status int, body any) {
	err := app.writeJSON(w, status, body, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.writeError(w, r, status, app.errorEnvelope(r, message))
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unauthorizedAccessResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusUnauthorized, ErrUnauthorized)
}

func (app *Application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusForbidden, ErrForbidden)
}

func (app *Application) editConflictResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusConflict, ErrEditConflict)
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		ErrorResponse: app.errorEnvelope(r, ErrFailedValidation),
	}

	for _, fieldErr := range validationErrs {
		resp.ValidationErrors = append(resp.ValidationErrors, api.ValidationError{
			Field: fieldErr.Field(),
			Issue: appvalidator.ValidationMessage(fieldErr),
		})
	}

	app.writeError(w, r, http.StatusUnprocessableEntity, resp)
}

func (app *Application) invalidFieldResponse(w http.ResponseWriter, r *http.Request, field string, err error) {
	resp := api.ValidationErrorResponse{
		ErrorResponse:    app.errorEnvelope(r, ErrFailedValidation),
		ValidationErrors: []api.ValidationError{{Field: field, Issue: err.Error()}},
	}

	app.writeError(w, r, http.StatusUnprocessableEntity, resp)
}

// bookingErrorResponse maps errors returned by the reservation and payment
// components to their HTTP representation.
func (app *Application) bookingErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflictErr    *domain.SeatConflictError
		unknownSeatErr *domain.UnknownSeatError
		promotionErr   *domain.PromotionRejectedError
		transitionErr  *domain.InvalidTransitionError
		gatewayErr     *domain.GatewayFailureError
	)

	switch {
	case errors.As(err, &conflictErr):
		app.writeError(w, r, http.StatusConflict, api.SeatConflictResponse{
			ErrorResponse: app.errorEnvelope(r, ErrSeatConflict),
			SeatCodes:     conflictErr.SeatCodes,
		})

	case errors.As(err, &unknownSeatErr):
		app.invalidFieldResponse(w, r, "SeatCodes", unknownSeatErr)

	case errors.Is(err, domain.ErrNoSeatsSelected):
		app.invalidFieldResponse(w, r, "SeatCodes", err)

	case errors.Is(err, domain.ErrHoldExpired):
		app.errorResponse(w, r, http.StatusGone, domain.ErrHoldExpired.Error())

	case errors.As(err, &promotionErr):
		app.writeError(w, r, http.StatusBadRequest, api.PromotionRejectedResponse{
			ErrorResponse: app.errorEnvelope(r, ErrPromotionRejected),
			Reason:        string(promotionErr.Reason),
			TotalPrice:    promotionErr.Total,
		})

	case errors.As(err, &transitionErr):
		app.writeError(w, r, http.StatusConflict, api.AlreadyResolvedResponse{
			ErrorResponse: app.errorEnvelope(r, ErrAlreadyResolved),
			Status:        string(transitionErr.Current),
		})

	case errors.As(err, &gatewayErr):
		app.logError(r, err)
		app.errorResponse(w, r, http.StatusBadGateway, gatewayErr.Error())

	case errors.Is(err, domain.ErrInvalidSignature):
		app.errorResponse(w, r, http.StatusBadRequest, ErrInvalidSignature)

	case errors.Is(err, domain.ErrUnsupportedPaymentMethod):
		app.errorResponse(w, r, http.StatusBadRequest, ErrPaymentMethod)

	case errors.Is(err, domain.ErrForbidden):
		app.forbiddenResponse(w, r)

	case errors.Is(err, domain.ErrRecordNotFound), errors.Is(err, domain.ErrHoldNotFound):
		app.notFoundResponse(w, r)

	case errors.Is(err, domain.ErrEditConflict):
		app.editConflictResponse(w, r)

	default:
		app.serverErrorResponse(w, r, err)
	}
}
