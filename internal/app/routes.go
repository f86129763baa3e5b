package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.logRequest)
	r.Use(app.recoverPanic)

	r.Get("/healthcheck", app.GetHealth)
	r.Get("/screenings/{screeningId}/seats", app.GetSeatMapHandler)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/{method}/return", app.PaymentReturnHandler)
		r.Post("/stripe/webhook", app.StripeWebhookHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(app.sessionManager.LoadAndSave)
		r.Use(app.requireAuthentication)

		r.Post("/screenings/{screeningId}/bookings", app.CreateBookingHandler)

		r.Route("/bookings/{bookingId}", func(r chi.Router) {
			r.Get("/", app.GetBookingHandler)
			r.Put("/seats", app.UpdateSeatsHandler)
			r.Post("/promotion", app.ApplyPromotionHandler)
			r.Post("/cancel", app.CancelBookingHandler)
			r.Post("/payment", app.ConfirmPaymentHandler)
		})
	})

	return r
}
