package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultDepositDescription = "Deposit applied"

// AuditTrail records committed ledger mutations and failures.
type AuditTrail interface {
	LogDeposit(transactionID int64, referenceID, accountNumber string, amount decimal.Decimal, currency, actorUserID string)
	LogDepositAdjusted(transactionID int64, accountNumber string, oldAmount, newAmount decimal.Decimal)
	LogDepositReversed(transactionID int64, accountNumber string, amount decimal.Decimal)
	LogTransfer(referenceID, fromAccount, toAccount string, debit, credit decimal.Decimal, actorUserID string)
	LogError(operation, accountNumber string, err error)
}

type DepositInput struct {
	AccountNumber string          `json:"accountNumber" validate:"required,min=8,max=20"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=250"`
	ActorUserID   string          `json:"-"`
}

type DepositResult struct {
	Account     *models.Account     `json:"account"`
	Transaction *models.Transaction `json:"transaction"`
}

type DepositService struct {
	ledger *DoubleLedgerService
	cfg    *config.LedgerConfig
	audit  AuditTrail
	events EventPublisher
}

func NewDepositService(ledger *DoubleLedgerService, cfg *config.LedgerConfig, audit AuditTrail, events EventPublisher) *DepositService {
	return &DepositService{
		ledger: ledger,
		cfg:    cfg,
		audit:  audit,
		events: events,
	}
}

// ApplyDeposit credits an ACTIVE account and records a reversible DEPOSIT row.
func (s *DepositService) ApplyDeposit(ctx context.Context, in DepositInput) (*DepositResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = defaultDepositDescription
	}

	var result DepositResult
	err := s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		account, err := s.ledger.lockAccount(ctx, tx, in.AccountNumber)
		if err != nil {
			return err
		}

		if !account.IsActive() {
			return fmt.Errorf("%w: %s is %s", ErrAccountNotActive, account.AccountNumber, account.Status)
		}

		if err := s.ledger.updateAccountBalance(ctx, tx, account, account.Balance.Add(in.Amount)); err != nil {
			return err
		}

		now := s.ledger.Now()
		reversibleUntil := now.Add(s.cfg.ReversalWindow)
		deposit := &models.Transaction{
			ReferenceID:     newReferenceID("DEP", now),
			Type:            models.TxDeposit,
			Status:          models.TxApplied,
			AccountNumber:   account.AccountNumber,
			Amount:          in.Amount,
			Currency:        account.Currency,
			Description:     description,
			CreatedByUserID: optionalString(in.ActorUserID),
			ReversibleUntil: &reversibleUntil,
		}
		if err := s.ledger.appendTransaction(ctx, tx, deposit); err != nil {
			return err
		}

		result = DepositResult{Account: account, Transaction: deposit}
		return nil
	})
	if err != nil {
		s.audit.LogError("DEPOSIT", in.AccountNumber, err)
		return nil, err
	}

	deposit := result.Transaction
	log.Printf("[DEPOSIT] Applied %s %s to %s (tx %d, ref %s)", deposit.Amount.StringFixed(2), deposit.Currency, deposit.AccountNumber, deposit.ID, deposit.ReferenceID)
	s.audit.LogDeposit(deposit.ID, deposit.ReferenceID, deposit.AccountNumber, deposit.Amount, deposit.Currency, in.ActorUserID)
	publishEvent(ctx, s.events, EventDepositApplied, depositEvent(&result, in.ActorUserID))

	return &result, nil
}

// AdjustDepositAmount rewrites an APPLIED deposit and moves the balance by the difference.
func (s *DepositService) AdjustDepositAmount(ctx context.Context, transactionID int64, newAmount decimal.Decimal) (*DepositResult, error) {
	if err := validateAmount(newAmount); err != nil {
		return nil, err
	}

	var (
		result    DepositResult
		oldAmount decimal.Decimal
	)
	err := s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		deposit, err := s.lockDeposit(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if deposit.Status != models.TxApplied {
			return fmt.Errorf("%w: deposit %d is %s", ErrDepositNotApplied, deposit.ID, deposit.Status)
		}

		account, err := s.ledger.lockAccount(ctx, tx, deposit.AccountNumber)
		if err != nil {
			return err
		}

		delta := newAmount.Sub(deposit.Amount)
		if delta.IsNegative() && account.Balance.LessThan(delta.Abs()) {
			return fmt.Errorf("%w: cannot lower deposit %d by %s", ErrInsufficientFunds, deposit.ID, delta.Abs().StringFixed(2))
		}

		if err := s.ledger.updateAccountBalance(ctx, tx, account, account.Balance.Add(delta)); err != nil {
			return err
		}

		oldAmount = deposit.Amount
		deposit.Amount = newAmount
		if err := s.ledger.updateTransaction(ctx, tx, deposit); err != nil {
			return err
		}

		result = DepositResult{Account: account, Transaction: deposit}
		return nil
	})
	if err != nil {
		s.audit.LogError("DEPOSIT_ADJUST", fmt.Sprintf("tx:%d", transactionID), err)
		return nil, err
	}

	deposit := result.Transaction
	log.Printf("[DEPOSIT] Adjusted deposit %d on %s from %s to %s", deposit.ID, deposit.AccountNumber, oldAmount.StringFixed(2), deposit.Amount.StringFixed(2))
	s.audit.LogDepositAdjusted(deposit.ID, deposit.AccountNumber, oldAmount, deposit.Amount)
	publishEvent(ctx, s.events, EventDepositAdjusted, depositEvent(&result, ""))

	return &result, nil
}

// ReverseDeposit undoes a deposit that is still inside its reversal window.
func (s *DepositService) ReverseDeposit(ctx context.Context, transactionID int64) (*DepositResult, error) {
	var result DepositResult
	err := s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		deposit, err := s.lockDeposit(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		if deposit.Status == models.TxReversed {
			return fmt.Errorf("%w: deposit %d", ErrAlreadyReversed, deposit.ID)
		}

		if !deposit.Reversible(s.ledger.Now()) {
			return fmt.Errorf("%w: deposit %d", ErrReversalWindowExpired, deposit.ID)
		}

		account, err := s.ledger.lockAccount(ctx, tx, deposit.AccountNumber)
		if err != nil {
			return err
		}

		if account.Balance.LessThan(deposit.Amount) {
			return fmt.Errorf("%w: cannot reverse deposit %d", ErrInsufficientFunds, deposit.ID)
		}

		if err := s.ledger.updateAccountBalance(ctx, tx, account, account.Balance.Sub(deposit.Amount)); err != nil {
			return err
		}

		deposit.Status = models.TxReversed
		if err := s.ledger.updateTransaction(ctx, tx, deposit); err != nil {
			return err
		}

		result = DepositResult{Account: account, Transaction: deposit}
		return nil
	})
	if err != nil {
		s.audit.LogError("DEPOSIT_REVERSE", fmt.Sprintf("tx:%d", transactionID), err)
		return nil, err
	}

	deposit := result.Transaction
	log.Printf("[DEPOSIT] Reversed deposit %d on %s (%s %s)", deposit.ID, deposit.AccountNumber, deposit.Amount.StringFixed(2), deposit.Currency)
	s.audit.LogDepositReversed(deposit.ID, deposit.AccountNumber, deposit.Amount)
	publishEvent(ctx, s.events, EventDepositReversed, depositEvent(&result, ""))

	return &result, nil
}

func (s *DepositService) lockDeposit(ctx context.Context, tx *sql.Tx, transactionID int64) (*models.Transaction, error) {
	deposit, err := s.ledger.getTransaction(ctx, tx, transactionID, true)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrDepositNotFound, transactionID)
	}
	if err != nil {
		return nil, err
	}
	if deposit.Type != models.TxDeposit {
		return nil, fmt.Errorf("%w: transaction %d is %s", ErrDepositNotFound, transactionID, deposit.Type)
	}
	return deposit, nil
}

func depositEvent(result *DepositResult, actorUserID string) LedgerEvent {
	return LedgerEvent{
		ReferenceID:   result.Transaction.ReferenceID,
		TransactionID: result.Transaction.ID,
		AccountNumber: result.Account.AccountNumber,
		Amount:        result.Transaction.Amount,
		Currency:      result.Transaction.Currency,
		BalanceAfter:  result.Account.Balance,
		ActorUserID:   actorUserID,
		OccurredAt:    result.Transaction.UpdatedAt,
	}
}

// validateAmount accepts strictly positive amounts with at most two decimals.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

// newReferenceID builds ids such as DEP-1741617000000-9f86d081.
func newReferenceID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}
