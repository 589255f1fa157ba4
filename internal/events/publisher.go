package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/garagehq/invoice-service-go/internal/invoice"
	"github.com/garagehq/invoice-service-go/internal/sequence"
)

// EventMeta carries the envelope identity fields of one published event.
type EventMeta struct {
	EventID       string
	CorrelationID string
	CausationID   string
	PartitionKey  string
}

type Publisher struct {
	ch                 *amqp.Channel
	seqRepo            *sequence.Repository
	producerIdentifier string
}

type PublisherOptions struct {
	Producer string
}

func NewPublisher(conn *amqp.Connection, seqRepo *sequence.Repository, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = invoiceServiceName
	}

	return &Publisher{
		ch:                 ch,
		seqRepo:            seqRepo,
		producerIdentifier: producer,
	}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishUsageReconciled announces the stock movements of a committed
// reconciliation, partitioned by invoice id.
func (p *Publisher) PublishUsageReconciled(ctx context.Context, invoiceID int64, consumed, returned []invoice.StockMovement) error {
	timestamp := time.Now().UTC()

	payload := UsageReconciledPayload{
		InvoiceID: invoiceID,
		Consumed:  toStockLines(consumed),
		Returned:  toStockLines(returned),
		Timestamp: timestamp,
	}

	meta := newMeta(strconv.FormatInt(invoiceID, 10))
	seq, err := p.seqRepo.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := newUsageReconciledEvent(meta, seq, p.producerIdentifier, payload, timestamp)
	body, err := json.Marshal(env.EventEnvelope)
	if err != nil {
		return fmt.Errorf("marshal UsageReconciled envelope: %w", err)
	}

	return p.publishJSON(ctx, UsageReconciledRoutingKey, body)
}

// PublishStockDepleted announces a reconciliation aborted by a failed draw.
func (p *Publisher) PublishStockDepleted(ctx context.Context, invoiceID, partID int64, requested, available int) error {
	timestamp := time.Now().UTC()

	payload := StockDepletedPayload{
		InvoiceID: invoiceID,
		PartID:    partID,
		Requested: requested,
		Available: available,
		Timestamp: timestamp,
	}

	meta := newMeta(strconv.FormatInt(invoiceID, 10))
	seq, err := p.seqRepo.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := newStockDepletedEvent(meta, seq, p.producerIdentifier, payload, timestamp)
	body, err := json.Marshal(env.EventEnvelope)
	if err != nil {
		return fmt.Errorf("marshal StockDepleted envelope: %w", err)
	}

	return p.publishJSON(ctx, StockDepletedRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	return p.ch.PublishWithContext(ctx,
		EventsExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func newMeta(partitionKey string) EventMeta {
	return EventMeta{
		EventID:       uuid.NewString(),
		CorrelationID: uuid.NewString(),
		PartitionKey:  partitionKey,
	}
}

func toStockLines(movements []invoice.StockMovement) []StockLine {
	lines := make([]StockLine, 0, len(movements))
	for _, mv := range movements {
		lines = append(lines, StockLine{PartID: mv.PartID, Quantity: mv.Quantity})
	}
	return lines
}
