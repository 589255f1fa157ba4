package invoice

// SummaryLine is a priced usage line of the read-only pricing projection.
type SummaryLine struct {
	PartID    int64   `json:"partId"`
	PartName  string  `json:"partName"`
	UnitPrice float64 `json:"unitPrice"`
	Count     int     `json:"count"`
	LineTotal float64 `json:"lineTotal"`
}

// Summary is the priced view of an invoice. It is recomputed from the parts'
// current unit prices on every call, so totals shift when catalog prices
// change.
type Summary struct {
	InvoiceID     int64         `json:"invoiceId"`
	Lines         []SummaryLine `json:"lines"`
	LabourCost    float64       `json:"labourCost"`
	TaxPercentage float64       `json:"taxPercentage"`
	Subtotal      float64       `json:"subtotal"`
	Tax           float64       `json:"tax"`
	GrandTotal    float64       `json:"grandTotal"`
}

// Summarize projects an invoice aggregate into its priced summary:
// lineTotal = unitPrice * count, subtotal = sum(lineTotal) + labourCost,
// grandTotal = subtotal * (1 + taxPercentage/100).
func Summarize(inv Invoice) Summary {
	s := Summary{
		InvoiceID:     inv.ID,
		LabourCost:    inv.LabourCost,
		TaxPercentage: inv.TaxPercentage,
	}

	var partsTotal float64
	for _, up := range inv.UsedParts {
		lineTotal := up.UnitPrice * float64(up.Count)
		partsTotal += lineTotal
		s.Lines = append(s.Lines, SummaryLine{
			PartID:    up.PartID,
			PartName:  up.PartName,
			UnitPrice: up.UnitPrice,
			Count:     up.Count,
			LineTotal: lineTotal,
		})
	}

	s.Subtotal = partsTotal + inv.LabourCost
	s.GrandTotal = s.Subtotal * (1 + inv.TaxPercentage/100)
	s.Tax = s.GrandTotal - s.Subtotal
	return s
}
