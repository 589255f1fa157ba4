package events

import (
	"encoding/json"
	"time"
)

const (
	EventTypeUsageReconciled = "InvoiceUsageReconciled"

	usageReconciledSchema = "garage.events.invoice-usage-reconciled.v1"
)

// StockLine is one applied ledger movement.
type StockLine struct {
	PartID   int64 `json:"partId"`
	Quantity int   `json:"quantity"`
}

// UsageReconciledPayload reports the stock movements of one committed
// reconciliation: Consumed lines were drawn from inventory, Returned lines
// were given back.
type UsageReconciledPayload struct {
	InvoiceID int64       `json:"invoiceId"`
	Consumed  []StockLine `json:"consumed,omitempty"`
	Returned  []StockLine `json:"returned,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type UsageReconciledEvent struct {
	EventEnvelope
	Payload UsageReconciledPayload `json:"-"`
}

func newUsageReconciledEvent(meta EventMeta, seq int64, producer string, payload UsageReconciledPayload, occurredAt time.Time) UsageReconciledEvent {
	body, _ := json.Marshal(payload)
	return UsageReconciledEvent{
		EventEnvelope: EventEnvelope{
			EventName:     EventTypeUsageReconciled,
			EventVersion:  1,
			EventID:       meta.EventID,
			CorrelationID: meta.CorrelationID,
			CausationID:   meta.CausationID,
			Producer:      producer,
			PartitionKey:  meta.PartitionKey,
			Sequence:      seq,
			OccurredAt:    occurredAt,
			Schema:        usageReconciledSchema,
			Payload:       body,
		},
		Payload: payload,
	}
}
