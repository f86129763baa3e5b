package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/ledger"
	"github.com/metinatakli/cinex-booking/internal/mocks"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/pricing"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/reservation"
	"github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/shopspring/decimal"
)

const (
	testUserId      = 7
	otherUserId     = 8
	testScreeningId = 1
	testReturnUrl   = "https://cinex.test/payments/vnpay/return"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv is an Application wired to in-memory storage and a mock gateway.
type testEnv struct {
	app        *Application
	clock      *testClock
	ledger     *ledger.MemoryLedger
	bookings   *repository.MemoryBookingRepository
	promotions *repository.MemoryPromotionRepository
	events     *mocks.MockEventPublisher
	handler    http.Handler
}

func newTestApplication(gateways ...domain.PaymentGateway) *testEnv {
	clock := &testClock{now: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		clock:    clock,
		ledger:   ledger.NewMemoryLedger(clock.Now),
		bookings: repository.NewMemoryBookingRepository(clock.Now),
		events:   &mocks.MockEventPublisher{},
		promotions: repository.NewMemoryPromotionRepository(&domain.Promotion{
			Code:      "SAVE20",
			Type:      domain.PromotionPercentage,
			Value:     decimal.NewFromInt(20),
			StartDate: clock.now.AddDate(0, 0, -1),
			EndDate:   clock.now.AddDate(0, 0, 1),
			Active:    true,
		}),
	}

	screenings := repository.NewMemoryScreeningRepository(&domain.Screening{
		ID:        testScreeningId,
		BasePrice: decimal.NewFromInt(100000),
		SeatCodes: []string{"A1", "A2", "A3", "B1", "B2", "B3"},
	})

	holds := reservation.NewHoldManager(env.ledger, env.bookings, screenings,
		reservation.WithClock(clock.Now),
		reservation.WithLogger(logger),
		reservation.WithEventPublisher(env.events),
	)
	machine := reservation.NewStateMachine(holds, pricing.NewEngine(env.promotions, pricing.WithClock(clock.Now)), env.promotions)

	if len(gateways) == 0 {
		gateways = append(gateways, payment.NewMockGateway(domain.PaymentMethodVNPay, testReturnUrl))
	}

	env.app = NewApp(
		Config{Env: "test", Storage: StorageMemory},
		logger,
		validator.NewValidator(),
		NewSessionManager(nil),
		holds,
		machine,
		payment.NewAdapter(machine, "vnd", logger, gateways...),
	)
	env.app.now = clock.Now
	env.handler = env.app.Routes()

	return env
}

// sessionCookie stores userId in a new session and returns its cookie.
func (e *testEnv) sessionCookie(t *testing.T, userId int) *http.Cookie {
	t.Helper()

	ctx, err := e.app.sessionManager.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}

	e.app.sessionManager.Put(ctx, SessionKeyUserId.String(), userId)

	token, _, err := e.app.sessionManager.Commit(ctx)
	if err != nil {
		t.Fatalf("Failed to commit session: %v", err)
	}

	return &http.Cookie{Name: e.app.sessionManager.Cookie.Name, Value: token}
}

// do serves a request through the router. userId 0 sends no session.
func (e *testEnv) do(t *testing.T, method, url string, body any, userId int) *httptest.ResponseRecorder {
	t.Helper()

	w, r := executeRequest(t, method, url, body)
	if userId != 0 {
		r.AddCookie(e.sessionCookie(t, userId))
	}

	e.handler.ServeHTTP(w, r)

	return w
}

// reserve holds seats through the HTTP API and returns the new booking id.
func (e *testEnv) reserve(t *testing.T, seatCodes ...string) api.BookingHoldResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/screenings/1/bookings", api.CreateBookingRequest{SeatCodes: seatCodes}, testUserId)
	if w.Code != http.StatusCreated {
		t.Fatalf("reserve %v: status = %d, body = %s", seatCodes, w.Code, w.Body.String())
	}

	var resp api.BookingHoldResponse
	decodeBody(t, w, &resp)

	return resp
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantErrMessage string
}) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		var validationResp api.ValidationErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&validationResp); err != nil {
			t.Fatalf("Failed to decode validation error response: %v", err)
		}

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}

	default:
		var errorResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}

		if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
			t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
		}
	}
}
