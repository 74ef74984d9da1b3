package services

import (
	"context"

	"github.com/crediexpress/corebanking/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockConversionGateway struct {
	mock.Mock
}

func (m *MockConversionGateway) Quote(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal) (*models.ConversionQuote, error) {
	args := m.Called(ctx, fromCurrency, toCurrency, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversionQuote), args.Error(1)
}

type MockAuditTrail struct {
	mock.Mock
}

func (m *MockAuditTrail) LogDeposit(transactionID int64, referenceID, accountNumber string, amount decimal.Decimal, currency, actorUserID string) {
	m.Called(transactionID, referenceID, accountNumber, amount, currency, actorUserID)
}

func (m *MockAuditTrail) LogDepositAdjusted(transactionID int64, accountNumber string, oldAmount, newAmount decimal.Decimal) {
	m.Called(transactionID, accountNumber, oldAmount, newAmount)
}

func (m *MockAuditTrail) LogDepositReversed(transactionID int64, accountNumber string, amount decimal.Decimal) {
	m.Called(transactionID, accountNumber, amount)
}

func (m *MockAuditTrail) LogTransfer(referenceID, fromAccount, toAccount string, debit, credit decimal.Decimal, actorUserID string) {
	m.Called(referenceID, fromAccount, toAccount, debit, credit, actorUserID)
}

func (m *MockAuditTrail) LogError(operation, accountNumber string, err error) {
	m.Called(operation, accountNumber, err)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event LedgerEvent) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

// decimalEq matches a decimal argument by value rather than by representation.
func decimalEq(s string) any {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}
