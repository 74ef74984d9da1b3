package handlers

import (
	"net/http"

	"github.com/crediexpress/corebanking/internal/services"
	"github.com/shopspring/decimal"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR generates a QR code asking for an amount to be paid into an account
// @Summary Generate QR Code
// @Description Generate a single-use QR code that resolves to a transfer into accountNumber
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{accountNumber=string,amount=number} true "QR generation request"
// @Success 200 {object} object{success=bool,result=services.QRTransferRequest}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	var req struct {
		AccountNumber string          `json:"accountNumber" validate:"required,min=8,max=20"`
		Amount        decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	qr, err := h.service.GenerateTransferQR(r.Context(), req.AccountNumber, req.Amount)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": qr})
}

// TransferFromQR pays a scanned QR code
// @Summary Pay QR Code
// @Description Consume a QR code and transfer its amount from fromAccountNumber
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string,fromAccountNumber=string,description=string} true "QR payment request"
// @Success 201 {object} object{success=bool,message=string,result=services.TransferResult}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers/qr [post]
func (h *QRHandler) TransferFromQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Code              string `json:"code" validate:"required"`
		FromAccountNumber string `json:"fromAccountNumber" validate:"required,min=8,max=20"`
		Description       string `json:"description" validate:"max=250"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.TransferFromQR(r.Context(), req.Code, req.FromAccountNumber, req.Description, userID)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "QR transfer applied",
		"result":  result,
	})
}
