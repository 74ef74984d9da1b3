package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// QRTransferPayload is what a QR code resolves to: the account to be paid and how much.
type QRTransferPayload struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CreatedAt     int64           `json:"createdAt"`
	Nonce         string          `json:"nonce"`
}

type QRTransferRequest struct {
	Code      string            `json:"code"`
	Image     string            `json:"image"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Payload   QRTransferPayload `json:"payload"`
}

type QRService struct {
	ledger    *DoubleLedgerService
	transfers *TransferService
	redis     *redis.Client
	ttl       time.Duration
	nonce     func() (string, error)
}

func NewQRService(ledger *DoubleLedgerService, transfers *TransferService, redis *redis.Client, ttl time.Duration) *QRService {
	return &QRService{
		ledger:    ledger,
		transfers: transfers,
		redis:     redis,
		ttl:       ttl,
		nonce:     generateNonce,
	}
}

// GenerateTransferQR issues a single-use code asking for amount to be paid into accountNumber.
func (s *QRService) GenerateTransferQR(ctx context.Context, accountNumber string, amount decimal.Decimal) (*QRTransferRequest, error) {
	if s.redis == nil {
		return nil, ErrQRUnavailable
	}

	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAccountNotActive, account.AccountNumber, account.Status)
	}

	now := s.ledger.Now()
	payload := QRTransferPayload{
		AccountNumber: account.AccountNumber,
		Amount:        amount,
		Currency:      account.Currency,
		CreatedAt:     now.Unix(),
	}
	if payload.Nonce, err = s.nonce(); err != nil {
		return nil, fmt.Errorf("failed to generate QR nonce: %w", err)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)
	if err := s.redis.Set(ctx, qrKey(code), string(jsonData), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store QR code: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}

	log.Printf("[QR] Issued transfer request for %s (%s %s)", account.AccountNumber, amount.StringFixed(2), account.Currency)
	return &QRTransferRequest{
		Code:      code,
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt: now.Add(s.ttl),
		Payload:   payload,
	}, nil
}

// TransferFromQR consumes the code and pays its amount from fromAccountNumber.
// A payment rejected by a ledger rule gives the code back for its remaining lifetime.
func (s *QRService) TransferFromQR(ctx context.Context, code, fromAccountNumber, description, actorUserID string) (*TransferResult, error) {
	payload, data, err := s.consume(ctx, code)
	if err != nil {
		return nil, err
	}

	result, err := s.transfers.Transfer(ctx, TransferInput{
		FromAccountNumber: fromAccountNumber,
		ToAccountNumber:   payload.AccountNumber,
		Amount:            payload.Amount,
		Description:       description,
		ActorUserID:       actorUserID,
	})
	if err != nil {
		if _, rejected := AsLedgerError(err); rejected {
			s.restore(ctx, code, payload, data)
		}
		return nil, err
	}
	return result, nil
}

func (s *QRService) restore(ctx context.Context, code string, payload *QRTransferPayload, data []byte) {
	remaining := time.Unix(payload.CreatedAt, 0).Add(s.ttl).Sub(s.ledger.Now())
	if remaining <= 0 {
		return
	}

	if err := s.redis.SetNX(ctx, qrKey(code), string(data), remaining).Err(); err != nil {
		log.Printf("[QR] Failed to restore code after rejected payment: %v", err)
	}
}

func (s *QRService) consume(ctx context.Context, code string) (*QRTransferPayload, []byte, error) {
	if s.redis == nil {
		return nil, nil, ErrQRUnavailable
	}

	key := qrKey(code)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil, ErrQRCodeInvalid
	}
	if err != nil {
		return nil, nil, err
	}

	// Whoever deletes the key owns the code.
	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, nil, err
	}
	if deleted == 0 {
		return nil, nil, fmt.Errorf("%w: already used", ErrQRCodeInvalid)
	}

	var payload QRTransferPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: corrupt payload", ErrQRCodeInvalid)
	}
	return &payload, data, nil
}

func qrKey(code string) string {
	return fmt.Sprintf("qr:%s", code)
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
