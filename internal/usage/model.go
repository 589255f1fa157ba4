package usage

// Record associates an invoice with a part it consumed. The (InvoiceID,
// PartID) pair is the identity; at most one record exists per pair and Count
// is always positive. A line that drops to zero is deleted, never stored.
type Record struct {
	InvoiceID int64 `json:"invoiceId"`
	PartID    int64 `json:"partId"`
	Count     int   `json:"count"`
}
