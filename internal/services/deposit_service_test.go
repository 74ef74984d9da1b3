package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		MaxTransferPerTx:  decimal.NewFromInt(2000),
		MaxTransferDaily:  decimal.NewFromInt(10000),
		ReversalWindow:    time.Minute,
		ConversionTimeout: 8 * time.Second,
		QRCodeTTL:         5 * time.Minute,
		BankBIC:           "CREDGTGC",
	}
}

func newTestDepositService(t *testing.T) (*DepositService, sqlmock.Sqlmock, *MockAuditTrail, *MockPublisher) {
	ledger, dbMock := newTestLedger(t)
	audit := new(MockAuditTrail)
	publisher := new(MockPublisher)
	return NewDepositService(ledger, testLedgerConfig(), audit, publisher), dbMock, audit, publisher
}

func TestDepositService_ApplyDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("successful deposit", func(t *testing.T) {
		service, dbMock, audit, publisher := newTestDepositService(t)
		reversibleUntil := testNow.Add(time.Minute)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "1000.00", 1))
		dbMock.ExpectExec(updateBalanceSQL).
			WithArgs(decimal.RequireFromString("1250.50"), sqlmock.AnyArg(), "GT00000001", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectQuery(insertTxSQL).
			WithArgs(sqlmock.AnyArg(), "DEPOSIT", "APPLIED", "GT00000001", nil, decimal.RequireFromString("250.50"),
				"GTQ", "Deposit applied", "admin-1", reversibleUntil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
		dbMock.ExpectCommit()

		audit.On("LogDeposit", int64(42), mock.AnythingOfType("string"), "GT00000001", decimalEq("250.50"), "GTQ", "admin-1").Return()
		publisher.On("Publish", ctx, EventDepositApplied, mock.MatchedBy(func(e LedgerEvent) bool {
			return e.TransactionID == 42 && e.BalanceAfter.Equal(decimal.RequireFromString("1250.50"))
		})).Return(nil)

		result, err := service.ApplyDeposit(ctx, DepositInput{
			AccountNumber: "GT00000001",
			Amount:        decimal.RequireFromString("250.50"),
			ActorUserID:   "admin-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "1250.50", result.Account.Balance.StringFixed(2))
		assert.Equal(t, 2, result.Account.Version)
		assert.Equal(t, models.TxDeposit, result.Transaction.Type)
		assert.Equal(t, models.TxApplied, result.Transaction.Status)
		assert.Regexp(t, `^DEP-\d+-[0-9a-f]{8}$`, result.Transaction.ReferenceID)
		require.NotNil(t, result.Transaction.ReversibleUntil)
		assert.Equal(t, reversibleUntil, *result.Transaction.ReversibleUntil)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		audit.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("rejects invalid amounts before touching the ledger", func(t *testing.T) {
		service, dbMock, _, _ := newTestDepositService(t)

		for _, amount := range []string{"0", "-5", "10.555"} {
			_, err := service.ApplyDeposit(ctx, DepositInput{AccountNumber: "GT00000001", Amount: decimal.RequireFromString(amount)})
			assert.ErrorIs(t, err, ErrInvalidAmount, amount)
		}
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("inactive account", func(t *testing.T) {
		service, dbMock, audit, publisher := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountBlocked, "1000.00", 1))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT", "GT00000001", mock.Anything).Return()

		_, err := service.ApplyDeposit(ctx, DepositInput{AccountNumber: "GT00000001", Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, ErrAccountNotActive)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown account", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000404").
			WillReturnRows(sqlmock.NewRows(accountCols))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT", "GT00000404", mock.Anything).Return()

		_, err := service.ApplyDeposit(ctx, DepositInput{AccountNumber: "GT00000404", Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestDepositService_AdjustDepositAmount(t *testing.T) {
	ctx := context.Background()

	t.Run("lowers amount outside the reversal window", func(t *testing.T) {
		service, dbMock, audit, publisher := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow.Add(-time.Hour)))
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "1250.00", 2))
		dbMock.ExpectExec(updateBalanceSQL).
			WithArgs(decimal.NewFromInt(1100), sqlmock.AnyArg(), "GT00000001", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(updateTxSQL).
			WithArgs(decimal.NewFromInt(100), "APPLIED", sqlmock.AnyArg(), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		audit.On("LogDepositAdjusted", int64(42), "GT00000001", decimalEq("250"), decimalEq("100")).Return()
		publisher.On("Publish", ctx, EventDepositAdjusted, mock.Anything).Return(nil)

		result, err := service.AdjustDepositAmount(ctx, 42, decimal.NewFromInt(100))
		require.NoError(t, err)
		assert.Equal(t, "1100.00", result.Account.Balance.StringFixed(2))
		assert.Equal(t, "100.00", result.Transaction.Amount.StringFixed(2))
		assert.NoError(t, dbMock.ExpectationsWereMet())
		audit.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("raises amount", func(t *testing.T) {
		service, dbMock, audit, publisher := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow))
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "250.00", 2))
		dbMock.ExpectExec(updateBalanceSQL).
			WithArgs(decimal.NewFromInt(300), sqlmock.AnyArg(), "GT00000001", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(updateTxSQL).
			WithArgs(decimal.NewFromInt(300), "APPLIED", sqlmock.AnyArg(), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		audit.On("LogDepositAdjusted", int64(42), "GT00000001", mock.Anything, mock.Anything).Return()
		publisher.On("Publish", ctx, EventDepositAdjusted, mock.Anything).Return(nil)

		result, err := service.AdjustDepositAmount(ctx, 42, decimal.NewFromInt(300))
		require.NoError(t, err)
		assert.Equal(t, "300.00", result.Account.Balance.StringFixed(2))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("insufficient balance for a lower amount", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow))
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "100.00", 2))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_ADJUST", "tx:42", mock.Anything).Return()

		_, err := service.AdjustDepositAmount(ctx, 42, decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("reversed deposit", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxReversed, "250.00", testNow))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_ADJUST", "tx:42", mock.Anything).Return()

		_, err := service.AdjustDepositAmount(ctx, 42, decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrDepositNotApplied)

		le, ok := AsLedgerError(err)
		require.True(t, ok)
		assert.Equal(t, KindConflict, le.Kind)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("transfer rows are not deposits", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(txCols).
				AddRow(int64(7), "TRX-1-aa", "TRANSFER_OUT", "APPLIED", "GT00000001", "GT00000002", "10.00", "GTQ",
					"Transfer sent", "user-1", nil, testNow, testNow))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_ADJUST", "tx:7", mock.Anything).Return()

		_, err := service.AdjustDepositAmount(ctx, 7, decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrDepositNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("missing deposit", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(txCols))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_ADJUST", "tx:99", mock.Anything).Return()

		_, err := service.AdjustDepositAmount(ctx, 99, decimal.NewFromInt(50))
		assert.ErrorIs(t, err, ErrDepositNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestDepositService_ReverseDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("inside the window", func(t *testing.T) {
		service, dbMock, audit, publisher := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow.Add(30*time.Second)))
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "1250.00", 2))
		dbMock.ExpectExec(updateBalanceSQL).
			WithArgs(decimal.NewFromInt(1000), sqlmock.AnyArg(), "GT00000001", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec(updateTxSQL).
			WithArgs(decimal.NewFromInt(250), "REVERSED", sqlmock.AnyArg(), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		audit.On("LogDepositReversed", int64(42), "GT00000001", decimalEq("250")).Return()
		publisher.On("Publish", ctx, EventDepositReversed, mock.Anything).Return(nil)

		result, err := service.ReverseDeposit(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, models.TxReversed, result.Transaction.Status)
		assert.Equal(t, "1000.00", result.Account.Balance.StringFixed(2))
		assert.NoError(t, dbMock.ExpectationsWereMet())
		audit.AssertExpectations(t)
		publisher.AssertExpectations(t)
	})

	t.Run("window expired", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow.Add(-time.Second)))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_REVERSE", "tx:42", mock.Anything).Return()

		_, err := service.ReverseDeposit(ctx, 42)
		assert.ErrorIs(t, err, ErrReversalWindowExpired)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("no reversal deadline recorded", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", nil))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_REVERSE", "tx:42", mock.Anything).Return()

		_, err := service.ReverseDeposit(ctx, 42)
		assert.ErrorIs(t, err, ErrReversalWindowExpired)
	})

	t.Run("already reversed", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxReversed, "250.00", testNow.Add(time.Minute)))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_REVERSE", "tx:42", mock.Anything).Return()

		_, err := service.ReverseDeposit(ctx, 42)
		assert.ErrorIs(t, err, ErrAlreadyReversed)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("funds already spent", func(t *testing.T) {
		service, dbMock, audit, _ := newTestDepositService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(lockTxSQL).
			WithArgs(int64(42)).
			WillReturnRows(depositRow(42, "GT00000001", models.TxApplied, "250.00", testNow.Add(time.Minute)))
		dbMock.ExpectQuery(lockAccountSQL).
			WithArgs("GT00000001").
			WillReturnRows(accountRow("GT00000001", "GTQ", models.AccountActive, "200.00", 3))
		dbMock.ExpectRollback()

		audit.On("LogError", "DEPOSIT_REVERSE", "tx:42", mock.Anything).Return()

		_, err := service.ReverseDeposit(ctx, 42)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, validateAmount(decimal.RequireFromString("0.01")))
	assert.NoError(t, validateAmount(decimal.RequireFromString("2000.10")))
	assert.ErrorIs(t, validateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, validateAmount(decimal.RequireFromString("1.001")), ErrInvalidAmount)
}
