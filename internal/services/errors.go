package services

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindConflict    ErrorKind = "CONFLICT"
	KindUpstream    ErrorKind = "UPSTREAM_FAILURE"
	KindValidation  ErrorKind = "VALIDATION"
	KindForbidden   ErrorKind = "FORBIDDEN"
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// LedgerError is a business rule failure. Wrap it with fmt.Errorf("%w: ...") to add context.
type LedgerError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	return e.Message
}

// StatusCode maps the error kind to the HTTP status returned to callers.
func (e *LedgerError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstream:
		if e.Code == ErrConversionTimeout.Code {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

var (
	ErrAccountNotFound     = &LedgerError{KindNotFound, "ACCOUNT_NOT_FOUND", "account not found"}
	ErrDepositNotFound     = &LedgerError{KindNotFound, "DEPOSIT_NOT_FOUND", "deposit not found"}
	ErrTransactionNotFound = &LedgerError{KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found"}
	ErrFavoriteNotFound    = &LedgerError{KindNotFound, "FAVORITE_NOT_FOUND", "favorite account not found"}
	ErrQRCodeInvalid       = &LedgerError{KindNotFound, "QR_CODE_INVALID", "invalid or expired QR code"}

	ErrDuplicateAccount            = &LedgerError{KindConflict, "DUPLICATE_ACCOUNT", "account number already registered"}
	ErrDuplicateFavorite           = &LedgerError{KindConflict, "DUPLICATE_FAVORITE", "favorite alias or account already registered"}
	ErrAccountNotActive            = &LedgerError{KindConflict, "ACCOUNT_NOT_ACTIVE", "account is not active"}
	ErrInsufficientFunds           = &LedgerError{KindConflict, "INSUFFICIENT_FUNDS", "insufficient funds"}
	ErrSameAccount                 = &LedgerError{KindConflict, "SAME_ACCOUNT", "cannot transfer to the same account"}
	ErrPerTransactionLimitExceeded = &LedgerError{KindConflict, "PER_TRANSACTION_LIMIT_EXCEEDED", "per-transaction transfer limit exceeded"}
	ErrDailyLimitExceeded          = &LedgerError{KindConflict, "DAILY_LIMIT_EXCEEDED", "daily transfer limit exceeded"}
	ErrReversalWindowExpired       = &LedgerError{KindConflict, "REVERSAL_WINDOW_EXPIRED", "deposit is outside its reversal window"}
	ErrAlreadyReversed             = &LedgerError{KindConflict, "ALREADY_REVERSED", "deposit already reversed"}
	ErrDepositNotApplied           = &LedgerError{KindConflict, "DEPOSIT_NOT_APPLIED", "only APPLIED deposits can be adjusted"}

	ErrConversionTimeout       = &LedgerError{KindUpstream, "CONVERSION_TIMEOUT", "currency conversion service timed out"}
	ErrConversionFailed        = &LedgerError{KindUpstream, "CONVERSION_FAILED", "currency conversion failed"}
	ErrInvalidConversionResult = &LedgerError{KindUpstream, "INVALID_CONVERSION_RESULT", "currency conversion returned an invalid amount"}

	ErrInvalidAmount = &LedgerError{KindValidation, "INVALID_AMOUNT", "amount must be greater than 0 with at most two decimals"}
	ErrInvalidInput  = &LedgerError{KindValidation, "INVALID_INPUT", "invalid input"}

	ErrForbidden = &LedgerError{KindForbidden, "FORBIDDEN", "resource belongs to another user"}

	ErrQRUnavailable = &LedgerError{KindUnavailable, "QR_UNAVAILABLE", "QR transfer requests are unavailable"}
)

// AsLedgerError extracts the LedgerError from a wrapped chain.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
