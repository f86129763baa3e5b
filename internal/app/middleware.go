package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

func (app *Application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")

				app.serverErrorResponse(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// logRequest stores a request scoped logger in the context and logs the outcome
// of every request.
func (app *Application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := app.logger.With(
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"requestId", middleware.GetReqID(r.Context()),
		)

		if span := trace.SpanContextFromContext(r.Context()); span.HasTraceID() {
			logger = logger.With("traceId", span.TraceID().String())
		}

		ctx := context.WithValue(r.Context(), loggerContextKey, logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("request completed", "status", ww.Status(), "bytes", ww.BytesWritten())
	})
}

func (app *Application) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := app.sessionManager.GetInt(r.Context(), SessionKeyUserId.String())
		if userId == 0 {
			app.unauthorizedAccessResponse(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKeyUserId, userId)
		ctx = context.WithValue(ctx, loggerContextKey, app.contextGetLogger(r).With("userId", userId))
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})
}
