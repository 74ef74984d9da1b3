package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive  AccountStatus = "ACTIVE"
	AccountBlocked AccountStatus = "BLOCKED"
	AccountClosed  AccountStatus = "CLOSED"
)

const DefaultCurrency = "GTQ"

// Account is an operational account held by the core ledger.
type Account struct {
	ID            int64           `json:"id" db:"id"`
	AccountNumber string          `json:"accountNumber" db:"account_number"`
	UserID        string          `json:"userId" db:"user_id"`
	Currency      string          `json:"currency" db:"currency"`
	Status        AccountStatus   `json:"status" db:"status"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Version       int             `json:"-" db:"version"` // for optimistic locking
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// FavoriteAccount is a per-user alias for a transfer destination.
type FavoriteAccount struct {
	ID            int64     `json:"id" db:"id"`
	OwnerUserID   string    `json:"ownerUserId" db:"owner_user_id"`
	AccountNumber string    `json:"accountNumber" db:"account_number"`
	AccountType   string    `json:"accountType" db:"account_type"`
	Alias         string    `json:"alias" db:"alias"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
