package events

import (
	"encoding/json"
	"time"
)

const (
	EventTypeStockDepleted = "StockDepleted"

	stockDepletedSchema = "garage.events.stock-depleted.v1"
)

// StockDepletedPayload reports a reconciliation that aborted because a draw
// would have taken a part's counter below zero. Nothing was committed.
type StockDepletedPayload struct {
	InvoiceID int64     `json:"invoiceId"`
	PartID    int64     `json:"partId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

type StockDepletedEvent struct {
	EventEnvelope
	Payload StockDepletedPayload `json:"-"`
}

func newStockDepletedEvent(meta EventMeta, seq int64, producer string, payload StockDepletedPayload, occurredAt time.Time) StockDepletedEvent {
	body, _ := json.Marshal(payload)
	return StockDepletedEvent{
		EventEnvelope: EventEnvelope{
			EventName:     EventTypeStockDepleted,
			EventVersion:  1,
			EventID:       meta.EventID,
			CorrelationID: meta.CorrelationID,
			CausationID:   meta.CausationID,
			Producer:      producer,
			PartitionKey:  meta.PartitionKey,
			Sequence:      seq,
			OccurredAt:    occurredAt,
			Schema:        stockDepletedSchema,
			Payload:       body,
		},
		Payload: payload,
	}
}
