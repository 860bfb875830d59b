package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/innopay/innopay-hub/db/models"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"
)

// bufPool reuses encoding buffers between published events.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

const (
	contentTypeJSON = "application/json"
)

// DebtEvent is published for every debt lifecycle change.
// The event type doubles as the routing key, e.g. "debt.recorded".
type DebtEvent struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Debts      []models.Debt `json:"debts"`
	TxRef      string        `json:"tx_ref,omitempty"`
}

func NewDebtEvent(eventType string, debts []models.Debt, txRef string) DebtEvent {
	return DebtEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Debts:      debts,
		TxRef:      txRef,
	}
}

type Client interface {
	PublishDebtEvent(ctx context.Context, event DebtEvent) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	amqpClient AMQPClient

	logger *lecho.Logger

	debtExchange string
}

type ClientOption = func(client *DefaultClient)

func WithDebtExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.debtExchange = exchange
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// NewClient declares the debt exchange up front so publishing never races the declaration.
func NewClient(amqpClient AMQPClient, options ...ClientOption) (Client, error) {
	client := &DefaultClient{
		amqpClient: amqpClient,

		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),

		debtExchange: "innopay_debt",
	}

	for _, opt := range options {
		opt(client)
	}

	err := client.amqpClient.ExchangeDeclare(
		client.debtExchange,
		// topic is a type of exchange that allows routing messages to different queue's bases on a routing key
		"topic",
		// Durable and Non-Auto-Deleted exchanges will survive server restarts and remain
		// declared when there are no remaining bindings.
		true,
		false,
		// Non-Internal exchange's accept direct publishing
		false,
		// Nowait: We set this to false as we want to wait for a server response
		// to check whether the exchange was created succesfully
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}

func (client *DefaultClient) Close() error { return client.amqpClient.Close() }

func (client *DefaultClient) PublishDebtEvent(ctx context.Context, event DebtEvent) error {
	payload := bufPool.Get().(*bytes.Buffer)
	defer func() {
		payload.Reset()
		bufPool.Put(payload)
	}()

	err := json.NewEncoder(payload).Encode(event)
	if err != nil {
		return err
	}

	err = client.amqpClient.PublishWithContext(ctx,
		client.debtExchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         payload.Bytes(),
		},
	)
	if err != nil {
		return err
	}

	client.logger.Debugf("Successfully published %s event %s for %d debts", event.Type, event.ID, len(event.Debts))
	return nil
}
