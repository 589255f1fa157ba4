package invoice

import (
	"time"

	"github.com/garagehq/invoice-service-go/internal/workshop"
)

// UsedPart is one line of an invoice's usage set, joined with the part's
// current catalog data. LineTotal is derived at read time from the current
// unit price; historical prices are not frozen.
type UsedPart struct {
	PartID    int64   `json:"partId"`
	PartName  string  `json:"partName"`
	UnitPrice float64 `json:"unitPrice"`
	Count     int     `json:"count"`
	LineTotal float64 `json:"lineTotal"`
}

type Invoice struct {
	ID            int64               `json:"invoiceId"`
	AppointmentID *int64              `json:"appointmentId,omitempty"`
	TaxPercentage float64             `json:"taxPercentage"`
	LabourCost    float64             `json:"labourCost"`
	UsedParts     []UsedPart          `json:"usedParts"`
	Mechanics     []workshop.Mechanic `json:"mechanics"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Line is one entry of a desired usage set: "this invoice should hold Count
// units of PartID".
type Line struct {
	PartID int64 `json:"partId"`
	Count  int   `json:"count"`
}

type CreateInvoiceInput struct {
	AppointmentID *int64  `json:"appointmentId,omitempty"`
	TaxPercentage float64 `json:"taxPercentage"`
	LabourCost    float64 `json:"labourCost"`
	UsedParts     []Line  `json:"usedParts"`
	MechanicIDs   []int64 `json:"mechanicIds"`
}

// UpdateInvoiceInput carries the full desired state. UsedParts is the desired
// usage set; lines with count <= 0 are treated as absent, and parts missing
// from the set are removed with their stock returned. A nil MechanicIDs keeps
// the current mechanic set, a non-nil one replaces it wholesale.
type UpdateInvoiceInput struct {
	TaxPercentage float64 `json:"taxPercentage"`
	LabourCost    float64 `json:"labourCost"`
	UsedParts     []Line  `json:"usedParts"`
	MechanicIDs   []int64 `json:"mechanicIds"`
}

// StockMovement reports one applied ledger adjustment of a reconciliation.
type StockMovement struct {
	PartID   int64 `json:"partId"`
	Quantity int   `json:"quantity"`
}
