package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/events"
	"github.com/metinatakli/cinex-booking/internal/ledger"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/pricing"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/reservation"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/metinatakli/cinex-booking/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const serviceName = "cinex-booking"

var (
	version = vcs.Version()
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Application struct {
	config         Config
	logger         *slog.Logger
	validator      *validator.Validate
	sessionManager *scs.SessionManager

	holds    *reservation.HoldManager
	bookings *reservation.StateMachine
	payments *payment.Adapter

	now func() time.Time
}

type Config struct {
	Port             int
	Env              string
	Storage          string
	Migrate          bool
	OtelCollectorUrl string
	DB               DBConfig
	Redis            RedisConfig
	Hold             HoldConfig
	Payment          PaymentConfig
	Stripe           StripeConfig
	RabbitMQ         RabbitMQConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type HoldConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

type PaymentConfig struct {
	Currency     string
	MockGateway  bool
	TerminalCode string
	HashSecret   string
	PayURL       string
	ReturnURL    string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessUrl    string
	CancelUrl     string
}

type RabbitMQConfig struct {
	URL string
}

func NewApp(
	cfg Config,
	logger *slog.Logger,
	validator *validator.Validate,
	sessionManager *scs.SessionManager,
	holds *reservation.HoldManager,
	bookings *reservation.StateMachine,
	payments *payment.Adapter) *Application {

	return &Application{
		config:         cfg,
		logger:         logger,
		validator:      validator,
		sessionManager: sessionManager,
		holds:          holds,
		bookings:       bookings,
		payments:       payments,
		now:            time.Now,
	}
}

func parseFlags() Config {
	var cfg Config

	flag.IntVar(&cfg.Port, "port", 3000, "server port")
	flag.StringVar(&cfg.Env, "env", "dev", "Environment (dev|staging|prod)")
	flag.StringVar(&cfg.Storage, "storage", StoragePostgres, "Storage backend (postgres|memory)")
	flag.BoolVar(&cfg.Migrate, "migrate", false, "Apply database migrations on startup")
	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector gRPC endpoint")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", "", "PostgreSQL DSN")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", "", "Redis URL")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.DurationVar(&cfg.Hold.TTL, "hold-ttl", reservation.DefaultHoldTTL, "How long selected seats stay held")
	flag.DurationVar(&cfg.Hold.SweepInterval, "sweep-interval", reservation.DefaultSweeperConfig().Interval, "Interval of the expired hold sweeper")
	flag.IntVar(&cfg.Hold.SweepBatch, "sweep-batch", reservation.DefaultSweeperConfig().BatchSize, "Bookings expired per sweep")

	flag.StringVar(&cfg.Payment.Currency, "currency", "vnd", "Currency of all prices")
	flag.BoolVar(&cfg.Payment.MockGateway, "payment-mock", false, "Replace the bank gateway with a mock that always succeeds")
	flag.StringVar(&cfg.Payment.TerminalCode, "vnpay-tmn-code", "", "Bank gateway terminal code")
	flag.StringVar(&cfg.Payment.HashSecret, "vnpay-hash-secret", "", "Bank gateway HMAC secret")
	flag.StringVar(&cfg.Payment.PayURL, "vnpay-pay-url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html", "Bank gateway payment page")
	flag.StringVar(&cfg.Payment.ReturnURL, "vnpay-return-url", "http://localhost:3000/payments/vnpay/return", "Bank gateway return URL")

	flag.StringVar(&cfg.Stripe.SecretKey, "stripe-key", "", "Stripe secret key")
	flag.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", "", "Stripe webhook secret")
	flag.StringVar(&cfg.Stripe.SuccessUrl, "stripe-success-url", "http://localhost:3000/payments/stripe/return", "Stripe payment success page")
	flag.StringVar(&cfg.Stripe.CancelUrl, "stripe-cancel-url", "http://localhost:3000/payments/stripe/return", "Stripe payment cancel page")

	flag.StringVar(&cfg.RabbitMQ.URL, "rabbitmq-url", "", "RabbitMQ URL, booking events are only logged when empty")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	return cfg
}

// Run parses the flags, wires every component and serves HTTP until SIGINT or SIGTERM.
func Run() error {
	cfg := parseFlags()

	app := &Application{
		config:    cfg,
		logger:    slog.New(slog.NewTextHandler(os.Stdout, nil)),
		validator: appvalidator.NewValidator(),
		now:       time.Now,
	}

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if cfg.OtelCollectorUrl != "" {
		app.logger = slog.New(NewMultiHandler(
			slog.NewTextHandler(os.Stdout, nil),
			otelslog.NewHandler(serviceName),
		))
	}

	stores, err := app.openStores()
	if err != nil {
		return err
	}
	defer stores.close()

	publisher, closePublisher, err := app.newEventPublisher()
	if err != nil {
		return err
	}
	defer closePublisher()

	holds := reservation.NewHoldManager(stores.ledger, stores.bookings, stores.screenings,
		reservation.WithHoldTTL(cfg.Hold.TTL),
		reservation.WithLogger(app.logger.With("component", "reservation")),
		reservation.WithEventPublisher(publisher),
	)

	engine := pricing.NewEngine(stores.promotions)
	machine := reservation.NewStateMachine(holds, engine, stores.promotions)

	app.holds = holds
	app.bookings = machine
	app.payments = payment.NewAdapter(machine, cfg.Payment.Currency, app.logger.With("component", "payment"), app.gateways()...)
	app.sessionManager = stores.sessionManager

	sweeper := reservation.NewExpirySweeper(holds, reservation.SweeperConfig{
		Interval:  cfg.Hold.SweepInterval,
		BatchSize: cfg.Hold.SweepBatch,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	return app.serve()
}

func (app *Application) gateways() []domain.PaymentGateway {
	var gateways []domain.PaymentGateway

	if app.config.Payment.MockGateway {
		gateways = append(gateways, payment.NewMockGateway(domain.PaymentMethodVNPay, app.config.Payment.ReturnURL))
	} else if app.config.Payment.HashSecret != "" {
		gateways = append(gateways, payment.NewSignedGateway(payment.SignedGatewayConfig{
			TerminalCode: app.config.Payment.TerminalCode,
			HashSecret:   app.config.Payment.HashSecret,
			PayURL:       app.config.Payment.PayURL,
			ReturnURL:    app.config.Payment.ReturnURL,
		}, time.Now))
	}

	if app.config.Stripe.SecretKey != "" {
		stripe.Key = app.config.Stripe.SecretKey

		gateways = append(gateways, payment.NewStripeGateway(
			app.config.Stripe.SuccessUrl,
			app.config.Stripe.CancelUrl,
			app.config.Stripe.WebhookSecret,
		))
	}

	return gateways
}

func (app *Application) newEventPublisher() (domain.EventPublisher, func(), error) {
	logger := app.logger.With("component", "events")

	if app.config.RabbitMQ.URL == "" {
		return events.NewLogPublisher(logger), func() {}, nil
	}

	publisher, err := events.NewRabbitPublisher(app.config.RabbitMQ.URL, logger)
	if err != nil {
		return nil, nil, err
	}

	return publisher, func() { _ = publisher.Close() }, nil
}

// stores groups the storage backends selected by the -storage flag.
type stores struct {
	ledger         domain.SeatLedger
	bookings       domain.BookingRepository
	screenings     domain.ScreeningRepository
	promotions     domain.PromotionRepository
	sessionManager *scs.SessionManager
	closers        []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (app *Application) openStores() (*stores, error) {
	switch app.config.Storage {
	case StorageMemory:
		app.logger.Warn("using in-memory storage, data is lost on restart")

		screenings, promotions := demoCatalog(time.Now())

		return &stores{
			ledger:         ledger.NewMemoryLedger(time.Now),
			bookings:       repository.NewMemoryBookingRepository(time.Now),
			screenings:     screenings,
			promotions:     promotions,
			sessionManager: NewSessionManager(nil),
		}, nil

	case StoragePostgres:
		if app.config.Migrate {
			if err := RunMigrations(app.config.DB.DSN, "file://migrations"); err != nil {
				return nil, err
			}

			app.logger.Info("database migrations applied")
		}

		db, err := NewDatabasePool(app.config)
		if err != nil {
			return nil, err
		}

		redisClient, err := NewRedisClient(app.config)
		if err != nil {
			db.Close()
			return nil, err
		}

		return &stores{
			ledger:         ledger.NewRedisLedger(redisClient),
			bookings:       repository.NewPostgresBookingRepository(db),
			screenings:     repository.NewPostgresScreeningRepository(db),
			promotions:     repository.NewPostgresPromotionRepository(db),
			sessionManager: NewSessionManager(redisClient),
			closers:        []func(){db.Close, func() { _ = redisClient.Close() }},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", app.config.Storage)
	}
}

func NewSessionManager(client *redis.Client) *scs.SessionManager {
	sessionManager := scs.New()

	if client != nil {
		sessionManager.Store = goredisstore.New(client)
	}
	sessionManager.IdleTimeout = 20 * time.Minute
	sessionManager.Cookie.Name = "session_id"

	return sessionManager
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return nil, err
	}

	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		shutdownError <- srv.Shutdown(ctx)
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env, "storage", app.config.Storage)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
