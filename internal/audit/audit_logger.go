package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp     time.Time       `json:"timestamp"`
	EventType     string          `json:"event_type"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Status        string          `json:"status"`
	ActorUserID   string          `json:"actor_user_id,omitempty"`
	Details       any             `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per ledger event.
type AuditLogger struct {
	printf func(format string, v ...any)
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{printf: log.Printf}
}

func (a *AuditLogger) LogDeposit(transactionID int64, referenceID, accountNumber string, amount decimal.Decimal, currency, actorUserID string) {
	a.log(AuditEvent{
		EventType:     "DEPOSIT",
		ReferenceID:   referenceID,
		TransactionID: transactionID,
		AccountNumber: accountNumber,
		Amount:        amount,
		Currency:      currency,
		Status:        "APPLIED",
		ActorUserID:   actorUserID,
	})
}

func (a *AuditLogger) LogDepositAdjusted(transactionID int64, accountNumber string, oldAmount, newAmount decimal.Decimal) {
	a.log(AuditEvent{
		EventType:     "DEPOSIT_ADJUSTED",
		TransactionID: transactionID,
		AccountNumber: accountNumber,
		Amount:        newAmount,
		Status:        "APPLIED",
		Details:       map[string]string{"previous_amount": oldAmount.StringFixed(2)},
	})
}

func (a *AuditLogger) LogDepositReversed(transactionID int64, accountNumber string, amount decimal.Decimal) {
	a.log(AuditEvent{
		EventType:     "DEPOSIT_REVERSED",
		TransactionID: transactionID,
		AccountNumber: accountNumber,
		Amount:        amount,
		Status:        "REVERSED",
	})
}

func (a *AuditLogger) LogTransfer(referenceID, fromAccount, toAccount string, debit, credit decimal.Decimal, actorUserID string) {
	a.log(AuditEvent{
		EventType:     "TRANSFER",
		ReferenceID:   referenceID,
		AccountNumber: fromAccount,
		Amount:        debit,
		Status:        "APPLIED",
		ActorUserID:   actorUserID,
		Details: map[string]string{
			"to_account":    toAccount,
			"credit_amount": credit.StringFixed(2),
		},
	})
}

func (a *AuditLogger) LogError(operation, accountNumber string, err error) {
	a.log(AuditEvent{
		EventType:     "ERROR",
		AccountNumber: accountNumber,
		Status:        "FAILED",
		Details:       map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = time.Now()
	data, _ := json.Marshal(event)
	a.printf("AUDIT: %s", string(data))
}
