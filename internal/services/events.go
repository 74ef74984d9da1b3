package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

const (
	EventDepositApplied    = "deposit.applied"
	EventDepositAdjusted   = "deposit.adjusted"
	EventDepositReversed   = "deposit.reversed"
	EventTransferCompleted = "transfer.completed"
)

// LedgerEvent is published after a ledger mutation has been committed.
type LedgerEvent struct {
	EventID                   string           `json:"eventId"`
	EventType                 string           `json:"eventType"`
	ReferenceID               string           `json:"referenceId"`
	TransactionID             int64            `json:"transactionId,omitempty"`
	AccountNumber             string           `json:"accountNumber"`
	CounterpartyAccountNumber string           `json:"counterpartyAccountNumber,omitempty"`
	Amount                    decimal.Decimal  `json:"amount"`
	Currency                  string           `json:"currency"`
	CreditAmount              *decimal.Decimal `json:"creditAmount,omitempty"`
	CreditCurrency            string           `json:"creditCurrency,omitempty"`
	BalanceAfter              decimal.Decimal  `json:"balanceAfter"`
	ActorUserID               string           `json:"actorUserId,omitempty"`
	OccurredAt                time.Time        `json:"occurredAt"`
}

// EventPublisher is implemented by types that can publish ledger events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event LedgerEvent) error
	Close()
}

// NoopEventPublisher is used when RabbitMQ is unavailable at startup.
type NoopEventPublisher struct{}

func (p *NoopEventPublisher) Publish(ctx context.Context, routingKey string, event LedgerEvent) error {
	log.Printf("[EVENTS] Publish skipped (no broker): %s %s", routingKey, event.ReferenceID)
	return nil
}

func (p *NoopEventPublisher) Close() {}

// AMQPEventPublisher publishes JSON events to a durable topic exchange.
type AMQPEventPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func NewAMQPEventPublisher(amqpURL, exchange string) (*AMQPEventPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	p := &AMQPEventPublisher{conn: conn, exchange: exchange}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("[EVENTS] Connected to RabbitMQ, exchange %s", exchange)
	return p, nil
}

func (p *AMQPEventPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return nil
}

func (p *AMQPEventPublisher) Publish(ctx context.Context, routingKey string, event LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// One reopen attempt for a closed channel.
	log.Printf("[EVENTS] Publish %s failed, reopening channel: %v", routingKey, err)
	if reopenErr := p.openChannel(); reopenErr != nil {
		return fmt.Errorf("publish %s: %w", routingKey, errors.Join(err, reopenErr))
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPEventPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// publishEvent never fails the caller; the ledger commit has already happened.
func publishEvent(ctx context.Context, publisher EventPublisher, routingKey string, event LedgerEvent) {
	if publisher == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.EventType = routingKey

	if err := publisher.Publish(ctx, routingKey, event); err != nil {
		log.Printf("[EVENTS] Failed to publish %s for %s: %v", routingKey, event.ReferenceID, err)
	}
}
