package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultDebitDescription  = "Transfer sent"
	defaultCreditDescription = "Transfer received"
)

type TransferInput struct {
	FromAccountNumber string          `json:"fromAccountNumber" validate:"required,min=8,max=20"`
	ToAccountNumber   string          `json:"toAccountNumber" validate:"required,min=8,max=20"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description" validate:"max=250"`
	ActorUserID       string          `json:"-"`
}

type QuickTransferInput struct {
	FavoriteID        int64           `json:"-"`
	OwnerUserID       string          `json:"-"`
	FromAccountNumber string          `json:"fromAccountNumber" validate:"required,min=8,max=20"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description" validate:"max=250"`
}

type TransferResult struct {
	ReferenceID       string                  `json:"referenceId"`
	FromAccount       *models.Account         `json:"fromAccount"`
	ToAccount         *models.Account         `json:"toAccount"`
	Conversion        *models.ConversionQuote `json:"conversion"`
	DebitTransaction  *models.Transaction     `json:"debitTransaction"`
	CreditTransaction *models.Transaction     `json:"creditTransaction"`
}

type TransferService struct {
	ledger    *DoubleLedgerService
	favorites *FavoriteService
	gateway   ConversionGateway
	cfg       *config.LedgerConfig
	audit     AuditTrail
	events    EventPublisher
}

func NewTransferService(ledger *DoubleLedgerService, favorites *FavoriteService, gateway ConversionGateway,
	cfg *config.LedgerConfig, audit AuditTrail, events EventPublisher) *TransferService {
	return &TransferService{
		ledger:    ledger,
		favorites: favorites,
		gateway:   gateway,
		cfg:       cfg,
		audit:     audit,
		events:    events,
	}
}

// Transfer moves funds between two accounts. All business checks run before the
// conversion call; the ledger effect is a single SQL transaction.
func (s *TransferService) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	result, err := s.transfer(ctx, in)
	if err != nil {
		s.audit.LogError("TRANSFER", in.FromAccountNumber, err)
		return nil, err
	}

	debit, credit := result.DebitTransaction, result.CreditTransaction
	log.Printf("[TRANSFER] %s: %s %s from %s to %s (credited %s %s)", result.ReferenceID,
		debit.Amount.StringFixed(2), debit.Currency, debit.AccountNumber,
		credit.AccountNumber, credit.Amount.StringFixed(2), credit.Currency)
	s.audit.LogTransfer(result.ReferenceID, debit.AccountNumber, credit.AccountNumber, debit.Amount, credit.Amount, in.ActorUserID)
	publishEvent(ctx, s.events, EventTransferCompleted, transferEvent(result, in.ActorUserID))

	return result, nil
}

func (s *TransferService) transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.FromAccountNumber == in.ToAccountNumber {
		return nil, fmt.Errorf("%w: %s", ErrSameAccount, in.FromAccountNumber)
	}

	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	if in.Amount.GreaterThan(s.cfg.MaxTransferPerTx) {
		return nil, fmt.Errorf("%w: maximum per transfer is %s", ErrPerTransactionLimitExceeded, s.cfg.MaxTransferPerTx.StringFixed(2))
	}

	from, err := s.ledger.GetAccount(ctx, in.FromAccountNumber)
	if err != nil {
		return nil, err
	}
	to, err := s.ledger.GetAccount(ctx, in.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	if !from.IsActive() || !to.IsActive() {
		return nil, fmt.Errorf("%w: both accounts must be active", ErrAccountNotActive)
	}

	if from.Balance.LessThan(in.Amount) {
		return nil, fmt.Errorf("%w: account %s", ErrInsufficientFunds, from.AccountNumber)
	}

	if err := s.checkDailyLimit(ctx, s.ledger.db, from.AccountNumber, in.Amount); err != nil {
		return nil, err
	}

	creditAmount := in.Amount
	var quote *models.ConversionQuote
	if from.Currency != to.Currency {
		quote, err = s.gateway.Quote(ctx, from.Currency, to.Currency, in.Amount)
		if err != nil {
			return nil, err
		}

		creditAmount = quote.ConvertedAmount.Round(2)
		if !creditAmount.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConversionResult, quote.ConvertedAmount.String())
		}
	}

	debitDescription, creditDescription := transferDescriptions(in.Description, from.Currency, to.Currency, quote)

	result := &TransferResult{Conversion: quote}
	err = s.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		lockedFrom, lockedTo, err := s.ledger.lockAccountPair(ctx, tx, from.AccountNumber, to.AccountNumber)
		if err != nil {
			return err
		}

		if !lockedFrom.IsActive() || !lockedTo.IsActive() {
			return fmt.Errorf("%w: both accounts must be active", ErrAccountNotActive)
		}

		if lockedFrom.Balance.LessThan(in.Amount) {
			return fmt.Errorf("%w: account %s", ErrInsufficientFunds, lockedFrom.AccountNumber)
		}

		// The source row is locked, so concurrent transfers from it are serialized here.
		if err := s.checkDailyLimit(ctx, tx, lockedFrom.AccountNumber, in.Amount); err != nil {
			return err
		}

		if err := s.ledger.updateAccountBalance(ctx, tx, lockedFrom, lockedFrom.Balance.Sub(in.Amount)); err != nil {
			return err
		}
		if err := s.ledger.updateAccountBalance(ctx, tx, lockedTo, lockedTo.Balance.Add(creditAmount)); err != nil {
			return err
		}

		referenceID := newReferenceID("TRX", s.ledger.Now())
		actor := optionalString(in.ActorUserID)
		toNumber, fromNumber := lockedTo.AccountNumber, lockedFrom.AccountNumber

		debit := &models.Transaction{
			ReferenceID:               referenceID,
			Type:                      models.TxTransferOut,
			Status:                    models.TxApplied,
			AccountNumber:             fromNumber,
			CounterpartyAccountNumber: &toNumber,
			Amount:                    in.Amount,
			Currency:                  lockedFrom.Currency,
			Description:               debitDescription,
			CreatedByUserID:           actor,
		}
		if err := s.ledger.appendTransaction(ctx, tx, debit); err != nil {
			return err
		}

		credit := &models.Transaction{
			ReferenceID:               referenceID,
			Type:                      models.TxTransferIn,
			Status:                    models.TxApplied,
			AccountNumber:             toNumber,
			CounterpartyAccountNumber: &fromNumber,
			Amount:                    creditAmount,
			Currency:                  lockedTo.Currency,
			Description:               creditDescription,
			CreatedByUserID:           actor,
		}
		if err := s.ledger.appendTransaction(ctx, tx, credit); err != nil {
			return err
		}

		result.ReferenceID = referenceID
		result.FromAccount = lockedFrom
		result.ToAccount = lockedTo
		result.DebitTransaction = debit
		result.CreditTransaction = credit
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// QuickTransferFromFavorite transfers to the account saved under one of the caller's favorites.
func (s *TransferService) QuickTransferFromFavorite(ctx context.Context, in QuickTransferInput) (*TransferResult, error) {
	favorite, err := s.favorites.GetFavorite(ctx, in.FavoriteID, in.OwnerUserID)
	if err != nil {
		return nil, err
	}

	return s.Transfer(ctx, TransferInput{
		FromAccountNumber: in.FromAccountNumber,
		ToAccountNumber:   favorite.AccountNumber,
		Amount:            in.Amount,
		Description:       in.Description,
		ActorUserID:       in.OwnerUserID,
	})
}

func (s *TransferService) checkDailyLimit(ctx context.Context, q querier, accountNumber string, amount decimal.Decimal) error {
	usedToday, err := s.ledger.sumTransferOutSince(ctx, q, accountNumber, startOfDay(s.ledger.Now()))
	if err != nil {
		return err
	}

	if usedToday.Add(amount).GreaterThan(s.cfg.MaxTransferDaily) {
		return fmt.Errorf("%w: maximum per day is %s, already used %s", ErrDailyLimitExceeded,
			s.cfg.MaxTransferDaily.StringFixed(2), usedToday.StringFixed(2))
	}
	return nil
}

func transferDescriptions(description, fromCurrency, toCurrency string, quote *models.ConversionQuote) (string, string) {
	description = strings.TrimSpace(description)
	debit, credit := description, description
	if debit == "" {
		debit = defaultDebitDescription
		credit = defaultCreditDescription
	}

	if quote == nil {
		return debit, credit
	}

	debit = fmt.Sprintf("%s | conversion %s->%s rate %s commission %s%%", debit, fromCurrency, toCurrency,
		quote.ExchangeRate.String(), quote.CommissionPercent.String())
	credit = credit + " | net credited after conversion and commission"
	return debit, credit
}

func transferEvent(result *TransferResult, actorUserID string) LedgerEvent {
	debit, credit := result.DebitTransaction, result.CreditTransaction
	creditAmount := credit.Amount
	return LedgerEvent{
		ReferenceID:               result.ReferenceID,
		TransactionID:             debit.ID,
		AccountNumber:             debit.AccountNumber,
		CounterpartyAccountNumber: credit.AccountNumber,
		Amount:                    debit.Amount,
		Currency:                  debit.Currency,
		CreditAmount:              &creditAmount,
		CreditCurrency:            credit.Currency,
		BalanceAfter:              result.FromAccount.Balance,
		ActorUserID:               actorUserID,
		OccurredAt:                debit.CreatedAt,
	}
}
