package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crediexpress/corebanking/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	accountColumns = `id, account_number, user_id, currency, status, balance, version, created_at, updated_at`
	txColumns      = `id, reference_id, type, status, account_number, counterparty_account_number, amount, currency,
		description, created_by_user_id, reversible_until, created_at, updated_at`

	pqUniqueViolation = "23505"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// DoubleLedgerService owns operational accounts and the ledger transaction log.
// Every mutation runs inside one SQL transaction with rows locked FOR UPDATE.
type DoubleLedgerService struct {
	db  *sql.DB
	now func() time.Time
}

func NewDoubleLedgerService(db *sql.DB) *DoubleLedgerService {
	return &DoubleLedgerService{
		db:  db,
		now: time.Now,
	}
}

func (s *DoubleLedgerService) Now() time.Time {
	return s.now()
}

type RegisterAccountInput struct {
	AccountNumber string               `json:"accountNumber" validate:"required,min=8,max=20"`
	UserID        string               `json:"userId" validate:"required"`
	Currency      string               `json:"currency" validate:"omitempty,len=3"`
	Status        models.AccountStatus `json:"status" validate:"omitempty,oneof=ACTIVE BLOCKED CLOSED"`
	Balance       decimal.Decimal      `json:"balance"`
}

func (s *DoubleLedgerService) RegisterAccount(ctx context.Context, in RegisterAccountInput) (*models.Account, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	status := in.Status
	if status == "" {
		status = models.AccountActive
	}
	if in.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance cannot be negative", ErrInvalidInput)
	}

	now := s.now()
	account := &models.Account{
		AccountNumber: in.AccountNumber,
		UserID:        in.UserID,
		Currency:      currency,
		Status:        status,
		Balance:       in.Balance.Round(2),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO core_accounts (account_number, user_id, currency, status, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
		RETURNING id`,
		account.AccountNumber, account.UserID, account.Currency, account.Status, account.Balance, now).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, in.AccountNumber)
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	log.Printf("[LEDGER] Registered account %s for user %s (%s, %s)", account.AccountNumber, account.UserID, account.Currency, account.Status)
	return account, nil
}

func (s *DoubleLedgerService) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	return s.getAccount(ctx, s.db, accountNumber, false)
}

func (s *DoubleLedgerService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM core_accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// WithTx runs fn inside a database transaction. Any error rolls everything back.
func (s *DoubleLedgerService) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *DoubleLedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountNumber string) (*models.Account, error) {
	return s.getAccount(ctx, tx, accountNumber, true)
}

// lockAccountPair locks both accounts in ascending account-number order so that
// opposite-direction transfers cannot deadlock each other.
func (s *DoubleLedgerService) lockAccountPair(ctx context.Context, tx *sql.Tx, fromAccountNumber, toAccountNumber string) (*models.Account, *models.Account, error) {
	firstLock, secondLock := fromAccountNumber, toAccountNumber
	if fromAccountNumber > toAccountNumber {
		firstLock, secondLock = toAccountNumber, fromAccountNumber
	}

	first, err := s.lockAccount(ctx, tx, firstLock)
	if err != nil {
		return nil, nil, err
	}

	second, err := s.lockAccount(ctx, tx, secondLock)
	if err != nil {
		return nil, nil, err
	}

	if firstLock != fromAccountNumber {
		return second, first, nil
	}
	return first, second, nil
}

func (s *DoubleLedgerService) getAccount(ctx context.Context, q querier, accountNumber string, forUpdate bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM core_accounts WHERE account_number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	account, err := scanAccount(q.QueryRowContext(ctx, query, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountNumber, err)
	}
	return account, nil
}

// updateAccountBalance writes the new balance guarded by the row version and
// refreshes the in-memory account on success.
func (s *DoubleLedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, account *models.Account, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: account %s", ErrInsufficientFunds, account.AccountNumber)
	}

	now := s.now()
	result, err := tx.ExecContext(ctx, `
		UPDATE core_accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_number = $3 AND version = $4`,
		newBalance, now, account.AccountNumber, account.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", account.AccountNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", account.AccountNumber)
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return nil
}

func (s *DoubleLedgerService) appendTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_transactions (reference_id, type, status, account_number, counterparty_account_number,
			amount, currency, description, created_by_user_id, reversible_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id`,
		t.ReferenceID, t.Type, t.Status, t.AccountNumber, t.CounterpartyAccountNumber,
		t.Amount, t.Currency, t.Description, t.CreatedByUserID, t.ReversibleUntil, now).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to append %s transaction: %w", t.Type, err)
	}
	return nil
}

func (s *DoubleLedgerService) updateTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	now := s.now()
	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET amount = $1, status = $2, updated_at = $3
		WHERE id = $4`,
		t.Amount, t.Status, now, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", t.ID, err)
	}
	t.UpdatedAt = now
	return nil
}

func (s *DoubleLedgerService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	return s.getTransaction(ctx, s.db, id, false)
}

func (s *DoubleLedgerService) getTransaction(ctx context.Context, q querier, id int64, forUpdate bool) (*models.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM ledger_transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return t, nil
}

// TransactionsByReference returns every leg sharing the reference id, oldest first.
func (s *DoubleLedgerService) TransactionsByReference(ctx context.Context, referenceID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE reference_id = $1 ORDER BY id ASC`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference %s: %w", referenceID, err)
	}
	return collectTransactions(rows)
}

func (s *DoubleLedgerService) listTransactions(ctx context.Context, accountNumber string, appliedOnly bool, limit int) ([]models.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM ledger_transactions WHERE account_number = $1`
	args := []any{accountNumber}
	if appliedOnly {
		query += ` AND status = $2 ORDER BY created_at DESC, id DESC LIMIT $3`
		args = append(args, models.TxApplied, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", accountNumber, err)
	}
	return collectTransactions(rows)
}

// sumTransferOutSince totals APPLIED outbound transfer legs created at or after since.
func (s *DoubleLedgerService) sumTransferOutSince(ctx context.Context, q querier, accountNumber string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_transactions
		WHERE account_number = $1 AND type = $2 AND status = $3 AND created_at >= $4`,
		accountNumber, models.TxTransferOut, models.TxApplied, since).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to aggregate daily transfers for %s: %w", accountNumber, err)
	}
	return total, nil
}

func (s *DoubleLedgerService) topAccountsByMovements(ctx context.Context, ascending bool, limit int) ([]models.MovementSummary, error) {
	direction := "DESC"
	if ascending {
		direction = "ASC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_number, COUNT(*) AS movement_count, COALESCE(SUM(amount), 0) AS total_amount, MAX(created_at) AS last_movement_at
		FROM ledger_transactions
		WHERE status = $1
		GROUP BY account_number
		ORDER BY movement_count `+direction+`, total_amount `+direction+`
		LIMIT $2`,
		models.TxApplied, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate movements: %w", err)
	}
	defer rows.Close()

	summaries := []models.MovementSummary{}
	for rows.Next() {
		var m models.MovementSummary
		if err := rows.Scan(&m.AccountNumber, &m.MovementCount, &m.TotalAmount, &m.LastMovementAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.AccountNumber, &a.UserID, &a.Currency, &a.Status, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t               models.Transaction
		counterparty    sql.NullString
		createdBy       sql.NullString
		reversibleUntil sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ReferenceID, &t.Type, &t.Status, &t.AccountNumber, &counterparty, &t.Amount, &t.Currency,
		&t.Description, &createdBy, &reversibleUntil, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if counterparty.Valid {
		t.CounterpartyAccountNumber = &counterparty.String
	}
	if createdBy.Valid {
		t.CreatedByUserID = &createdBy.String
	}
	if reversibleUntil.Valid {
		t.ReversibleUntil = &reversibleUntil.Time
	}
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
