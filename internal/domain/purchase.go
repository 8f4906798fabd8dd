package domain

import "time"

// Purchase records one completed sale from the buyer's point of view.
// Purchases are immutable and kept in an append-only, per-buyer sequence
// whose order is the purchase order.
type Purchase struct {
	ItemID      int64     `json:"item_id"`
	Buyer       Address   `json:"buyer"`
	Price       int64     `json:"price"`
	PurchasedAt time.Time `json:"purchased_at"`
}
