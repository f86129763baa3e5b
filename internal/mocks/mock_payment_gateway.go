package mocks

import (
	"context"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
	domain.PaymentGateway
}

func (m *MockPaymentGateway) Method() domain.PaymentMethod {
	args := m.Called()
	return args.Get(0).(domain.PaymentMethod)
}

func (m *MockPaymentGateway) BuildRedirectURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) VerifyCallback(ctx context.Context, cb domain.GatewayCallback) (*domain.GatewayOutcome, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOutcome), args.Error(1)
}
