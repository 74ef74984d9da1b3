package services

import (
	"context"
	"strings"

	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	defaultRecentLimit  = 5
	maxRecentLimit      = 20
	defaultTopLimit     = 10
	maxTopLimit         = 100
)

// ReportingService answers read-only questions about accounts and movements.
type ReportingService struct {
	ledger *DoubleLedgerService
	cfg    *config.LedgerConfig
}

func NewReportingService(ledger *DoubleLedgerService, cfg *config.LedgerConfig) *ReportingService {
	return &ReportingService{ledger: ledger, cfg: cfg}
}

// History lists every ledger row of an account, newest first.
func (s *ReportingService) History(ctx context.Context, accountNumber string, limit int) ([]models.Transaction, error) {
	return s.ledger.listTransactions(ctx, accountNumber, false, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
}

// RecentMovements lists APPLIED rows only.
func (s *ReportingService) RecentMovements(ctx context.Context, accountNumber string, limit int) ([]models.Transaction, error) {
	return s.ledger.listTransactions(ctx, accountNumber, true, clampLimit(limit, defaultRecentLimit, maxRecentLimit))
}

func (s *ReportingService) TransferUsageToday(ctx context.Context, accountNumber string) (*models.TransferUsage, error) {
	used, err := s.ledger.sumTransferOutSince(ctx, s.ledger.db, accountNumber, startOfDay(s.ledger.Now()))
	if err != nil {
		return nil, err
	}

	remaining := decimal.Max(decimal.Zero, s.cfg.MaxTransferDaily.Sub(used))
	return &models.TransferUsage{
		AccountNumber:  accountNumber,
		UsedToday:      used,
		MaxDaily:       s.cfg.MaxTransferDaily,
		RemainingToday: remaining,
	}, nil
}

// TopAccountsByMovements ranks accounts by APPLIED movement count, then total amount.
// Any order other than "asc" sorts descending.
func (s *ReportingService) TopAccountsByMovements(ctx context.Context, order string, limit int) ([]models.MovementSummary, error) {
	ascending := strings.EqualFold(strings.TrimSpace(order), "asc")
	return s.ledger.topAccountsByMovements(ctx, ascending, clampLimit(limit, defaultTopLimit, maxTopLimit))
}

func (s *ReportingService) AccountOverview(ctx context.Context, accountNumber string) (*models.AccountOverview, error) {
	account, err := s.ledger.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	recent, err := s.RecentMovements(ctx, accountNumber, defaultRecentLimit)
	if err != nil {
		return nil, err
	}

	return &models.AccountOverview{
		AccountNumber:   account.AccountNumber,
		UserID:          account.UserID,
		Balance:         account.Balance,
		Currency:        account.Currency,
		Status:          account.Status,
		RecentMovements: recent,
	}, nil
}

// clampLimit maps 0 to the default and everything else into [1, maxLimit].
func clampLimit(limit, defaultLimit, maxLimit int) int {
	switch {
	case limit == 0:
		return defaultLimit
	case limit < 1:
		return 1
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
