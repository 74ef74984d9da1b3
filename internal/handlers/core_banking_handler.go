package handlers

import (
	"net/http"
	"strings"

	"github.com/crediexpress/corebanking/internal/services"
	"github.com/shopspring/decimal"
)

type CoreBankingHandler struct {
	ledger    *services.DoubleLedgerService
	deposits  *services.DepositService
	transfers *services.TransferService
	favorites *services.FavoriteService
	reporting *services.ReportingService
	validator *services.ValidationHelper
}

func NewCoreBankingHandler(
	ledger *services.DoubleLedgerService,
	deposits *services.DepositService,
	transfers *services.TransferService,
	favorites *services.FavoriteService,
	reporting *services.ReportingService,
) *CoreBankingHandler {
	return &CoreBankingHandler{
		ledger:    ledger,
		deposits:  deposits,
		transfers: transfers,
		favorites: favorites,
		reporting: reporting,
		validator: services.NewValidationHelper(),
	}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ListAccounts lists every operational account
// @Summary List operational accounts
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,total=int,accounts=[]models.Account}
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts [get]
func (h *CoreBankingHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(accounts),
		"accounts": accounts,
	})
}

// GetAccount returns one operational account
// @Summary Get operational account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} object{success=bool,account=models.Account}
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountNumber} [get]
func (h *CoreBankingHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := accountNumberParam(w, r, h.validator)
	if !ok {
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), accountNumber)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

// RegisterAccount registers an operational account
// @Summary Register operational account
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RegisterAccountInput true "Account"
// @Success 201 {object} object{success=bool,message=string,account=models.Account}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/register [post]
func (h *CoreBankingHandler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterAccountInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.ledger.RegisterAccount(r.Context(), req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Operational account registered",
		"account": account,
	})
}

// CreateDeposit credits an account
// @Summary Apply deposit
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.DepositInput true "Deposit"
// @Success 201 {object} object{success=bool,message=string,result=services.DepositResult}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *CoreBankingHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req services.DepositInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	req.ActorUserID = userID

	result, err := h.deposits.ApplyDeposit(r.Context(), req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Deposit applied",
		"result":  result,
	})
}

// UpdateDepositAmount corrects the amount of an applied deposit
// @Summary Adjust deposit amount
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path int true "Deposit transaction id"
// @Param request body object{amount=number} true "New amount"
// @Success 200 {object} object{success=bool,message=string,result=services.DepositResult}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /deposits/{transactionId}/amount [patch]
func (h *CoreBankingHandler) UpdateDepositAmount(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}

	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.deposits.AdjustDepositAmount(r.Context(), transactionID, req.Amount)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Deposit amount adjusted",
		"result":  result,
	})
}

// ReverseDeposit reverses a deposit inside its reversal window
// @Summary Reverse deposit
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Param transactionId path int true "Deposit transaction id"
// @Success 200 {object} object{success=bool,message=string,result=services.DepositResult}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /deposits/{transactionId}/reverse [patch]
func (h *CoreBankingHandler) ReverseDeposit(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}

	result, err := h.deposits.ReverseDeposit(r.Context(), transactionID)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Deposit reversed",
		"result":  result,
	})
}

// CreateTransfer moves funds between two accounts
// @Summary Transfer
// @Tags Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.TransferInput true "Transfer"
// @Success 201 {object} object{success=bool,message=string,result=services.TransferResult}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Failure 504 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *CoreBankingHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req services.TransferInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	req.ActorUserID = userID

	result, err := h.transfers.Transfer(r.Context(), req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Transfer applied",
		"result":  result,
	})
}

// QuickTransfer pays one of the caller's favorite accounts
// @Summary Quick transfer to favorite
// @Tags Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param favoriteId path int true "Favorite id"
// @Param request body services.QuickTransferInput true "Transfer"
// @Success 201 {object} object{success=bool,message=string,result=services.TransferResult}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers/favorites/{favoriteId} [post]
func (h *CoreBankingHandler) QuickTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	favoriteID, ok := pathID(w, r, "favoriteId")
	if !ok {
		return
	}

	var req services.QuickTransferInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	req.FavoriteID = favoriteID
	req.OwnerUserID = userID

	result, err := h.transfers.QuickTransferFromFavorite(r.Context(), req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Quick transfer applied",
		"result":  result,
	})
}

// ListFavorites lists the caller's favorite accounts
// @Summary List favorites
// @Tags Favorites
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,total=int,favorites=[]models.FavoriteAccount}
// @Router /favorites [get]
func (h *CoreBankingHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	favorites, err := h.favorites.ListFavorites(r.Context(), userID)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(favorites),
		"favorites": favorites,
	})
}

// CreateFavorite saves an account under an alias
// @Summary Create favorite
// @Tags Favorites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.FavoriteInput true "Favorite"
// @Success 201 {object} object{success=bool,message=string,favorite=models.FavoriteAccount}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /favorites [post]
func (h *CoreBankingHandler) CreateFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req services.FavoriteInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	favorite, err := h.favorites.CreateFavorite(r.Context(), userID, req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Account added to favorites",
		"favorite": favorite,
	})
}

// UpdateFavorite changes the alias or type of a favorite
// @Summary Update favorite
// @Tags Favorites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param favoriteId path int true "Favorite id"
// @Param request body services.FavoriteUpdate true "Changes"
// @Success 200 {object} object{success=bool,message=string,favorite=models.FavoriteAccount}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /favorites/{favoriteId} [patch]
func (h *CoreBankingHandler) UpdateFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	favoriteID, ok := pathID(w, r, "favoriteId")
	if !ok {
		return
	}

	var req services.FavoriteUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	favorite, err := h.favorites.UpdateFavorite(r.Context(), favoriteID, userID, req)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Favorite updated",
		"favorite": favorite,
	})
}

// DeleteFavorite removes a favorite
// @Summary Delete favorite
// @Tags Favorites
// @Produce json
// @Security BearerAuth
// @Param favoriteId path int true "Favorite id"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /favorites/{favoriteId} [delete]
func (h *CoreBankingHandler) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	favoriteID, ok := pathID(w, r, "favoriteId")
	if !ok {
		return
	}

	if err := h.favorites.DeleteFavorite(r.Context(), favoriteID, userID); err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Favorite deleted"})
}

// History lists every ledger row of an account
// @Summary Account history
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Param limit query int false "Max rows (default 50, max 200)"
// @Success 200 {object} object{success=bool,total=int,history=[]models.Transaction}
// @Router /history/account/{accountNumber} [get]
func (h *CoreBankingHandler) History(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := accountNumberParam(w, r, h.validator)
	if !ok {
		return
	}

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	history, err := h.reporting.History(r.Context(), accountNumber, limit)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(history),
		"history": history,
	})
}

// RecentMovements lists the latest applied rows of an account
// @Summary Recent movements
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Param limit query int false "Max rows (default 5, max 20)"
// @Success 200 {object} object{success=bool,total=int,history=[]models.Transaction}
// @Router /history/account/{accountNumber}/recent [get]
func (h *CoreBankingHandler) RecentMovements(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := accountNumberParam(w, r, h.validator)
	if !ok {
		return
	}

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	history, err := h.reporting.RecentMovements(r.Context(), accountNumber, limit)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(history),
		"history": history,
	})
}

// TransferUsageToday reports how much of the daily limit is left
// @Summary Transfer usage today
// @Tags Transfers
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} object{success=bool,usage=models.TransferUsage}
// @Router /transfers/usage/{accountNumber}/today [get]
func (h *CoreBankingHandler) TransferUsageToday(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := accountNumberParam(w, r, h.validator)
	if !ok {
		return
	}

	usage, err := h.reporting.TransferUsageToday(r.Context(), accountNumber)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"usage": usage})
}

// TopAccountsByMovements ranks accounts by applied movements
// @Summary Top accounts by movements
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param order query string false "asc or desc (default desc)"
// @Param limit query int false "Max rows (default 10, max 100)"
// @Success 200 {object} object{success=bool,message=string,total=int,accounts=[]models.MovementSummary}
// @Router /admin/accounts/top-movements [get]
func (h *CoreBankingHandler) TopAccountsByMovements(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	order := r.URL.Query().Get("order")
	accounts, err := h.reporting.TopAccountsByMovements(r.Context(), order, limit)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	direction := "descending"
	if strings.EqualFold(strings.TrimSpace(order), "asc") {
		direction = "ascending"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Accounts ordered by movement count (" + direction + ")",
		"total":    len(accounts),
		"accounts": accounts,
	})
}

// AccountOverview summarizes an account with its latest movements
// @Summary Account overview
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "Account number"
// @Success 200 {object} object{success=bool,message=string,overview=models.AccountOverview}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/accounts/{accountNumber}/overview [get]
func (h *CoreBankingHandler) AccountOverview(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := accountNumberParam(w, r, h.validator)
	if !ok {
		return
	}

	overview, err := h.reporting.AccountOverview(r.Context(), accountNumber)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Account overview",
		"overview": overview,
	})
}
