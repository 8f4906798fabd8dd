package domain

import (
	"time"

	dErrors "tradepost/pkg/domain-errors"
)

// Item is a marketplace listing. The id is a monotonically increasing index
// assigned by the catalog starting at 0; ids are never reused.
//
// Invariants:
//   - Price is strictly positive for all time.
//   - Available flips to false on the first purchase and never back.
//   - Owner changes exactly once per sale, to the buyer.
type Item struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Owner       Address   `json:"owner"`
	Available   bool      `json:"available"`
	ListedAt    time.Time `json:"listed_at"`
}

// NewItem validates and constructs a listing owned by the lister.
func NewItem(owner Address, name, description string, price int64, now time.Time) (Item, error) {
	if owner.IsZero() {
		return Item{}, dErrors.New(dErrors.CodeBadRequest, "owner address is required")
	}
	if name == "" {
		return Item{}, dErrors.New(dErrors.CodeBadRequest, "item name must not be empty")
	}
	if price <= 0 {
		return Item{}, dErrors.New(dErrors.CodeInvalidPrice, "price must be greater than zero")
	}
	return Item{
		Name:        name,
		Description: description,
		Price:       price,
		Owner:       owner,
		Available:   true,
		ListedAt:    now,
	}, nil
}

// CanSell checks that the item can still be purchased.
func (i *Item) CanSell() error {
	if !i.Available {
		return dErrors.New(dErrors.CodeItemUnavailable, "item not available")
	}
	return nil
}

// ApplySale transfers ownership to the buyer and retires the listing.
// Call CanSell first; the catalog store holds its lock across both.
func (i *Item) ApplySale(buyer Address) {
	i.Owner = buyer
	i.Available = false
}
