package domain

import "github.com/shopspring/decimal"

type LineItem struct {
	ID       ProductID       `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Rating   Rating          `json:"rating"`
	Quantity int             `json:"quantity"`
}

// Subtotal is price times quantity for this line.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartState is the aggregate held by a cart. Total and ItemCount are derived
// from Items and are only ever written by the cart store.
type CartState struct {
	Items     []LineItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// EmptyCart returns the initial cart state.
func EmptyCart() CartState {
	return CartState{Items: []LineItem{}, Total: decimal.Zero}
}

// Find returns the line item with the given id.
func (s CartState) Find(id ProductID) (LineItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// Clone returns a copy whose Items slice does not alias s.Items.
func (s CartState) Clone() CartState {
	items := make([]LineItem, len(s.Items))
	copy(items, s.Items)
	return CartState{Items: items, Total: s.Total, ItemCount: s.ItemCount}
}
