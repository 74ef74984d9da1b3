package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crediexpress/corebanking/internal/audit"
	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/middleware"
	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accountCols  = []string{"id", "account_number", "user_id", "currency", "status", "balance", "version", "created_at", "updated_at"}
	favoriteCols = []string{"id", "owner_user_id", "account_number", "account_type", "alias", "created_at", "updated_at"}
	txCols       = []string{"id", "reference_id", "type", "status", "account_number", "counterparty_account_number", "amount",
		"currency", "description", "created_by_user_id", "reversible_until", "created_at", "updated_at"}
)

type handlerFixture struct {
	router chi.Router
	dbMock sqlmock.Sqlmock
	redis  redismock.ClientMock
	caller middleware.Principal
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.LedgerConfig{
		MaxTransferPerTx: decimal.NewFromInt(2000),
		MaxTransferDaily: decimal.NewFromInt(10000),
		ReversalWindow:   time.Minute,
		QRCodeTTL:        5 * time.Minute,
		BankBIC:          "CREDGTGC",
	}
	auditLogger := audit.NewAuditLogger()
	events := &services.NoopEventPublisher{}
	redisClient, redisMock := redismock.NewClientMock()

	ledger := services.NewDoubleLedgerService(db)
	favorites := services.NewFavoriteService(ledger)
	transfers := services.NewTransferService(ledger, favorites, services.NewHTTPConversionClient("", time.Second), cfg, auditLogger, events)

	core := NewCoreBankingHandler(ledger,
		services.NewDepositService(ledger, cfg, auditLogger, events),
		transfers, favorites,
		services.NewReportingService(ledger, cfg))
	qr := NewQRHandler(services.NewQRService(ledger, transfers, redisClient, cfg.QRCodeTTL))
	iso := NewISO20022Handler(services.NewISO20022Service(ledger, cfg.BankBIC))

	f := &handlerFixture{dbMock: dbMock, redis: redisMock, caller: middleware.Principal{UserID: "admin-1", Role: middleware.RoleBankAdmin}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if f.caller.UserID != "" {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), f.caller))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/accounts/{accountNumber}", core.GetAccount)
	r.Post("/accounts/register", core.RegisterAccount)
	r.Post("/deposits", core.CreateDeposit)
	r.Patch("/deposits/{transactionId}/reverse", core.ReverseDeposit)
	r.Post("/transfers", core.CreateTransfer)
	r.Delete("/favorites/{favoriteId}", core.DeleteFavorite)
	r.Get("/history/account/{accountNumber}", core.History)
	r.Get("/admin/accounts/top-movements", core.TopAccountsByMovements)
	r.Post("/transfers/qr", qr.TransferFromQR)
	r.Get("/transactions/{transactionId}/iso20022/status", iso.StatusReport)
	f.router = r

	return f
}

func (f *handlerFixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCoreBankingHandler_Accounts(t *testing.T) {
	now := time.Now()

	t.Run("get account", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.dbMock.ExpectQuery("SELECT (.+) FROM core_accounts WHERE account_number = \\$1").
			WithArgs("GT00000001").
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(1), "GT00000001", "user-1", "GTQ", "ACTIVE", "150.00", 1, now, now))

		w := f.do(http.MethodGet, "/accounts/GT00000001", "")

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		account := body["account"].(map[string]any)
		assert.Equal(t, "GT00000001", account["accountNumber"])
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("short account number", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodGet, "/accounts/GT1", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.dbMock.ExpectQuery("SELECT (.+) FROM core_accounts WHERE account_number = \\$1").
			WithArgs("GT00000404").
			WillReturnRows(sqlmock.NewRows(accountCols))

		w := f.do(http.MethodGet, "/accounts/GT00000404", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "ACCOUNT_NOT_FOUND", decodeBody(t, w)["code"])
	})

	t.Run("register rejects bad currency", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodPost, "/accounts/register", `{"accountNumber":"GT00000001","userId":"user-1","currency":"QUETZ"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		details := decodeBody(t, w)["details"].(map[string]any)
		assert.Contains(t, details, "currency")
	})
}

func TestCoreBankingHandler_Deposits(t *testing.T) {
	now := time.Now()

	t.Run("applies a deposit", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.dbMock.ExpectBegin()
		f.dbMock.ExpectQuery("SELECT (.+) FROM core_accounts WHERE account_number = \\$1 FOR UPDATE").
			WithArgs("GT00000001").
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(1), "GT00000001", "user-1", "GTQ", "ACTIVE", "100.00", 1, now, now))
		f.dbMock.ExpectExec("UPDATE core_accounts SET balance").
			WithArgs(decimal.RequireFromString("350.5"), sqlmock.AnyArg(), "GT00000001", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.dbMock.ExpectQuery("INSERT INTO ledger_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
		f.dbMock.ExpectCommit()

		w := f.do(http.MethodPost, "/deposits", `{"accountNumber":"GT00000001","amount":250.50}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		result := decodeBody(t, w)["result"].(map[string]any)
		tx := result["transaction"].(map[string]any)
		assert.Equal(t, float64(9), tx["id"])
		assert.Equal(t, "admin-1", tx["createdByUserId"])
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodPost, "/deposits", `{"accountNumber":"GT00000001","amount":10,"currency":"USD"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a third decimal", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodPost, "/deposits", `{"accountNumber":"GT00000001","amount":"10.005"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_AMOUNT", decodeBody(t, w)["code"])
	})

	t.Run("invalid transaction id", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodPatch, "/deposits/abc/reverse", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCoreBankingHandler_Transfers(t *testing.T) {
	t.Run("requires an authenticated caller", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.caller = middleware.Principal{}

		w := f.do(http.MethodPost, "/transfers", `{"fromAccountNumber":"GT00000001","toAccountNumber":"GT00000002","amount":10}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("same account is a conflict", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodPost, "/transfers", `{"fromAccountNumber":"GT00000001","toAccountNumber":"GT00000001","amount":10}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "SAME_ACCOUNT", decodeBody(t, w)["code"])
	})

	t.Run("qr code not found", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.redis.ExpectGet("qr:gone").RedisNil()

		w := f.do(http.MethodPost, "/transfers/qr", `{"code":"gone","fromAccountNumber":"GT00000001"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "QR_CODE_INVALID", decodeBody(t, w)["code"])
	})
}

func TestCoreBankingHandler_Favorites(t *testing.T) {
	t.Run("cannot delete another user's favorite", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.caller = middleware.Principal{UserID: "user-1", Role: middleware.RoleClient}
		now := time.Now()
		f.dbMock.ExpectQuery("SELECT (.+) FROM favorite_accounts WHERE id = \\$1").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(favoriteCols).AddRow(int64(5), "user-2", "GT00000002", "MONETARY", "Mom", now, now))

		w := f.do(http.MethodDelete, "/favorites/5", "")

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})
}

func TestCoreBankingHandler_Reporting(t *testing.T) {
	t.Run("history uses the default limit", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.dbMock.ExpectQuery("SELECT (.+) FROM ledger_transactions WHERE account_number = \\$1").
			WithArgs("GT00000001", 50).
			WillReturnRows(sqlmock.NewRows(txCols))

		w := f.do(http.MethodGet, "/history/account/GT00000001", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), decodeBody(t, w)["total"])
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("non numeric limit", func(t *testing.T) {
		f := newHandlerFixture(t)

		w := f.do(http.MethodGet, "/admin/accounts/top-movements?limit=ten", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestISO20022Handler_StatusReport(t *testing.T) {
	t.Run("raw xml on request", func(t *testing.T) {
		f := newHandlerFixture(t)
		now := time.Now()
		f.dbMock.ExpectQuery("SELECT (.+) FROM ledger_transactions WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(txCols).AddRow(int64(7), "DEP-1-abcdef01", "DEPOSIT", "APPLIED", "GT00000001", nil,
				"25.00", "GTQ", "Deposit applied", "admin-1", now, now, now))

		w := f.do(http.MethodGet, "/transactions/7/iso20022/status", "", "Accept", "application/xml")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "ACSC")
	})
}
