package ledger

import "time"

// Part is an inventory item. QuantityAvailable is mutated only through the
// repository's Increase/Decrease operations.
type Part struct {
	ID                int64   `json:"partId"`
	Name              string  `json:"name"`
	UnitPrice         float64 `json:"unitPrice"`
	QuantityAvailable int     `json:"quantityAvailable"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
