package events

import "time"

const (
	EventTypePartUsed = "PartUsed"

	partUsedSchema = "garage.events.part-used.v1"
)

// PartUsedPayload is published by the shop-floor terminal whenever a mechanic
// books a part against an appointment. The invoice service consumes it and
// records the usage on the appointment's invoice, creating the invoice first
// when none exists.
type PartUsedPayload struct {
	AppointmentID int64     `json:"appointmentId"`
	PartID        int64     `json:"partId"`
	Count         int       `json:"count"`
	Timestamp     time.Time `json:"timestamp"`
}
