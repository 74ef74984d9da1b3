package handlers

import (
	"net/http"
	"strings"

	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-chi/chi/v5"
)

type ISO20022Handler struct {
	service *services.ISO20022Service
}

func NewISO20022Handler(service *services.ISO20022Service) *ISO20022Handler {
	return &ISO20022Handler{service: service}
}

// TransferMessage exports a transfer as pacs.008
// @Summary Export transfer as pacs.008
// @Tags ISO20022
// @Produce json
// @Produce xml
// @Security BearerAuth
// @Param referenceId path string true "Transfer reference id"
// @Success 200 {object} object{success=bool,result=services.ISO20022Document}
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers/{referenceId}/iso20022 [get]
func (h *ISO20022Handler) TransferMessage(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.TransferToPacs008(r.Context(), chi.URLParam(r, "referenceId"))
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeDocument(w, r, doc)
}

// StatusReport reports a ledger entry as pacs.002
// @Summary Ledger entry status as pacs.002
// @Tags ISO20022
// @Produce json
// @Produce xml
// @Security BearerAuth
// @Param transactionId path int true "Ledger transaction id"
// @Success 200 {object} object{success=bool,result=services.ISO20022Document}
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/iso20022/status [get]
func (h *ISO20022Handler) StatusReport(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := pathID(w, r, "transactionId")
	if !ok {
		return
	}

	doc, err := h.service.EntryStatusReport(r.Context(), transactionID)
	if err != nil {
		services.WriteLedgerError(w, err)
		return
	}

	writeDocument(w, r, doc)
}

// writeDocument sends raw XML when the client asks for it, the JSON envelope otherwise.
func writeDocument(w http.ResponseWriter, r *http.Request, doc *services.ISO20022Document) {
	if strings.Contains(r.Header.Get("Accept"), "xml") {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(doc.XML))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": doc})
}
