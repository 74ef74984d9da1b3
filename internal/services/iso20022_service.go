package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/crediexpress/corebanking/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const (
	MessageTypePacs008 = "pacs.008.001.08"
	MessageTypePacs002 = "pacs.002.001.08"

	statusSettled  = "ACSC"
	statusRejected = "RJCT"
)

type ISO20022Document struct {
	MessageType string `json:"messageType"`
	MessageID   string `json:"messageId"`
	ReferenceID string `json:"referenceId"`
	Status      string `json:"status,omitempty"`
	XML         string `json:"xml"`
}

// ISO20022Service renders ledger rows as ISO 20022 interbank messages.
type ISO20022Service struct {
	ledger *DoubleLedgerService
	bic    string
}

func NewISO20022Service(ledger *DoubleLedgerService, bic string) *ISO20022Service {
	return &ISO20022Service{
		ledger: ledger,
		bic:    bic,
	}
}

// TransferToPacs008 exports both legs of a transfer as a customer credit transfer.
func (iso *ISO20022Service) TransferToPacs008(ctx context.Context, referenceID string) (*ISO20022Document, error) {
	legs, err := iso.ledger.TransactionsByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	var debit, credit *models.Transaction
	for i := range legs {
		switch legs[i].Type {
		case models.TxTransferOut:
			debit = &legs[i]
		case models.TxTransferIn:
			credit = &legs[i]
		}
	}
	if debit == nil || credit == nil {
		return nil, fmt.Errorf("%w: transfer %s", ErrTransactionNotFound, referenceID)
	}

	doc, err := iso.CreatePacs008(debit, credit)
	if err != nil {
		return nil, err
	}

	xmlData, err := iso.ConvertToXML(doc)
	if err != nil {
		return nil, err
	}

	return &ISO20022Document{
		MessageType: MessageTypePacs008,
		MessageID:   string(doc.GrpHdr.MsgId),
		ReferenceID: referenceID,
		XML:         xmlData,
	}, nil
}

// EntryStatusReport reports a single ledger row: ACSC while APPLIED, RJCT once REVERSED.
func (iso *ISO20022Service) EntryStatusReport(ctx context.Context, transactionID int64) (*ISO20022Document, error) {
	t, err := iso.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	status := statusSettled
	if t.Status == models.TxReversed {
		status = statusRejected
	}

	doc, err := iso.CreatePacs002(t, status)
	if err != nil {
		return nil, err
	}

	xmlData, err := iso.ConvertToXML(doc)
	if err != nil {
		return nil, err
	}

	return &ISO20022Document{
		MessageType: MessageTypePacs002,
		MessageID:   string(doc.GrpHdr.MsgId),
		ReferenceID: t.ReferenceID,
		Status:      status,
		XML:         xmlData,
	}, nil
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(debit, credit *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := iso.ledger.Now()
	settlementDate := debit.CreatedAt
	instrID := common.Max35Text(strconv.FormatInt(debit.ID, 10))
	bic := common.BICFIDec2014Identifier(iso.bic)
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(debit.Currency),
		Value: debit.Amount.InexactFloat64(),
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(msgId),
			CreDtTm:           common.ISODateTime(creDtTm),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // settled on the books of this institution
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &instrID,
					EndToEndId: common.Max35Text(debit.ReferenceID),
					TxId:       &instrID,
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &bic,
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(debit.AccountNumber)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &bic,
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(credit.AccountNumber)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 payment status report
func (iso *ISO20022Service) CreatePacs002(t *models.Transaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := iso.ledger.Now()
	instrID := common.Max35Text(strconv.FormatInt(t.ID, 10))

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &instrID,
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(t.ReferenceID)}[0],
				OrgnlTxId:       &instrID,
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
