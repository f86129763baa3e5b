package integration_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/app"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/events"
	"github.com/metinatakli/cinex-booking/internal/ledger"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/pricing"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/reservation"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/redis/go-redis/v9"
)

type TestApp struct {
	App            *app.Application
	DB             *pgxpool.Pool
	RedisClient    *redis.Client
	SessionManager *scs.SessionManager
	Holds          *reservation.HoldManager
	Bookings       *repository.PostgresBookingRepository
	Handler        http.Handler
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	validator := appvalidator.NewValidator()

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessionManager := app.NewSessionManager(redisClient)

	bookingRepo := repository.NewPostgresBookingRepository(db)
	screeningRepo := repository.NewPostgresScreeningRepository(db)
	promotionRepo := repository.NewPostgresPromotionRepository(db)

	holds := reservation.NewHoldManager(
		ledger.NewRedisLedger(redisClient),
		bookingRepo,
		screeningRepo,
		reservation.WithHoldTTL(cfg.Hold.TTL),
		reservation.WithLogger(logger),
		reservation.WithEventPublisher(events.NewLogPublisher(logger)),
	)
	machine := reservation.NewStateMachine(holds, pricing.NewEngine(promotionRepo), promotionRepo)

	payments := payment.NewAdapter(machine, cfg.Payment.Currency, logger,
		payment.NewMockGateway(domain.PaymentMethodVNPay, TestReturnUrl),
	)

	application := app.NewApp(
		cfg,
		logger,
		validator,
		sessionManager,
		holds,
		machine,
		payments,
	)

	return &TestApp{
		App:            application,
		DB:             db,
		RedisClient:    redisClient,
		SessionManager: sessionManager,
		Holds:          holds,
		Bookings:       bookingRepo,
		Handler:        application.Routes(),
	}, nil
}

func (a *TestApp) Close() {
	a.RedisClient.Close()
	a.DB.Close()
}

// sessionCookie stores userId in a Redis-backed session and returns its cookie.
func (a *TestApp) sessionCookie(t testing.TB, userId int) http.Cookie {
	t.Helper()

	ctx, err := a.SessionManager.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}

	a.SessionManager.Put(ctx, app.SessionKeyUserId.String(), userId)

	token, _, err := a.SessionManager.Commit(ctx)
	if err != nil {
		t.Fatalf("failed to commit session: %v", err)
	}

	return http.Cookie{Name: a.SessionManager.Cookie.Name, Value: token}
}
