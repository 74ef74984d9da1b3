package database

import (
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS core_accounts (
		id             BIGSERIAL PRIMARY KEY,
		account_number VARCHAR(20)   NOT NULL UNIQUE,
		user_id        VARCHAR(64)   NOT NULL,
		currency       CHAR(3)       NOT NULL DEFAULT 'GTQ',
		status         VARCHAR(10)   NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'BLOCKED', 'CLOSED')),
		balance        NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version        INTEGER       NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_core_accounts_user_status ON core_accounts (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id                          BIGSERIAL PRIMARY KEY,
		reference_id                VARCHAR(64)   NOT NULL,
		type                        VARCHAR(16)   NOT NULL CHECK (type IN ('DEPOSIT', 'TRANSFER_OUT', 'TRANSFER_IN')),
		status                      VARCHAR(10)   NOT NULL DEFAULT 'APPLIED' CHECK (status IN ('APPLIED', 'REVERSED')),
		account_number              VARCHAR(20)   NOT NULL REFERENCES core_accounts (account_number),
		counterparty_account_number VARCHAR(20),
		amount                      NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		currency                    CHAR(3)       NOT NULL,
		description                 VARCHAR(250)  NOT NULL DEFAULT '',
		created_by_user_id          VARCHAR(64),
		reversible_until            TIMESTAMPTZ,
		created_at                  TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		updated_at                  TIMESTAMPTZ   NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_tx_reference ON ledger_transactions (reference_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_tx_account_created ON ledger_transactions (account_number, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_tx_account_type_status ON ledger_transactions (account_number, type, status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS favorite_accounts (
		id             BIGSERIAL PRIMARY KEY,
		owner_user_id  VARCHAR(64) NOT NULL,
		account_number VARCHAR(20) NOT NULL,
		account_type   VARCHAR(40) NOT NULL,
		alias          VARCHAR(60) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner_user_id, alias),
		UNIQUE (owner_user_id, account_number)
	)`,
}

// RunMigrations creates the ledger tables and indexes idempotently.
func RunMigrations(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
