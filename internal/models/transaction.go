package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxDeposit     TransactionType = "DEPOSIT"
	TxTransferOut TransactionType = "TRANSFER_OUT"
	TxTransferIn  TransactionType = "TRANSFER_IN"
)

type TransactionStatus string

const (
	TxApplied  TransactionStatus = "APPLIED"
	TxReversed TransactionStatus = "REVERSED"
)

// Transaction is one row of the ledger log. Both legs of a transfer share ReferenceID.
type Transaction struct {
	ID                        int64             `json:"id" db:"id"`
	ReferenceID               string            `json:"referenceId" db:"reference_id"`
	Type                      TransactionType   `json:"type" db:"type"`
	Status                    TransactionStatus `json:"status" db:"status"`
	AccountNumber             string            `json:"accountNumber" db:"account_number"`
	CounterpartyAccountNumber *string           `json:"counterpartyAccountNumber" db:"counterparty_account_number"`
	Amount                    decimal.Decimal   `json:"amount" db:"amount"`
	Currency                  string            `json:"currency" db:"currency"`
	Description               string            `json:"description" db:"description"`
	CreatedByUserID           *string           `json:"createdByUserId" db:"created_by_user_id"`
	ReversibleUntil           *time.Time        `json:"reversibleUntil" db:"reversible_until"`
	CreatedAt                 time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt                 time.Time         `json:"updatedAt" db:"updated_at"`
}

// Reversible reports whether a deposit can still be undone at the given instant.
func (t *Transaction) Reversible(now time.Time) bool {
	if t.Type != TxDeposit || t.Status != TxApplied || t.ReversibleUntil == nil {
		return false
	}
	return !now.After(*t.ReversibleUntil)
}

// ConversionQuote is the quote returned by the currency conversion service.
type ConversionQuote struct {
	FromCurrency                    string          `json:"fromCurrency"`
	ToCurrency                      string          `json:"toCurrency"`
	Amount                          decimal.Decimal `json:"amount"`
	ExchangeRate                    decimal.Decimal `json:"exchangeRate"`
	ConvertedAmountBeforeCommission decimal.Decimal `json:"convertedAmountBeforeCommission"`
	CommissionPercent               decimal.Decimal `json:"commissionPercent"`
	CommissionAmount                decimal.Decimal `json:"commissionAmount"`
	ConvertedAmount                 decimal.Decimal `json:"convertedAmount"`
	Provider                        string          `json:"provider,omitempty"`
	Source                          string          `json:"source,omitempty"`
	QuotedAt                        string          `json:"quotedAt,omitempty"`
}

// MovementSummary aggregates applied ledger rows for one account.
type MovementSummary struct {
	AccountNumber  string          `json:"accountNumber"`
	MovementCount  int64           `json:"movementCount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	LastMovementAt time.Time       `json:"lastMovementAt"`
}

type TransferUsage struct {
	AccountNumber  string          `json:"accountNumber"`
	UsedToday      decimal.Decimal `json:"usedToday"`
	MaxDaily       decimal.Decimal `json:"maxDaily"`
	RemainingToday decimal.Decimal `json:"remainingToday"`
}

type AccountOverview struct {
	AccountNumber   string          `json:"accountNumber"`
	UserID          string          `json:"userId"`
	Balance         decimal.Decimal `json:"balance"`
	Currency        string          `json:"currency"`
	Status          AccountStatus   `json:"status"`
	RecentMovements []Transaction   `json:"recentMovements"`
}
