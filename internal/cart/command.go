package cart

import "github.com/shophub/storefront/internal/domain"

// Command is a cart mutation. The set of commands is closed: every variant
// lives in this package and supplies its own transition over the item list,
// so a new variant that forgets its transition does not compile.
type Command interface {
	// Kind names the command for logs and events.
	Kind() string

	// apply returns the next item list and whether anything changed.
	// It must not modify items.
	apply(items []domain.LineItem) ([]domain.LineItem, bool)
}

const (
	KindAdd         = "ADD"
	KindRemove      = "REMOVE"
	KindSetQuantity = "SET_QUANTITY"
	KindClear       = "CLEAR"
)

// MaxQuantity caps the quantity of a single line. SetQuantity clamps to it and
// Add stops incrementing once a line has reached it.
const MaxQuantity = 10000

// Add puts one unit of Product in the cart.
type Add struct {
	Product domain.Product
}

// Remove deletes the line for ID whatever its quantity.
type Remove struct {
	ID domain.ProductID
}

// SetQuantity overwrites the quantity of the line for ID. Quantities of zero
// or less remove the line; quantities above MaxQuantity are clamped.
type SetQuantity struct {
	ID       domain.ProductID
	Quantity int
}

// Clear empties the cart.
type Clear struct{}

func (Add) Kind() string         { return KindAdd }
func (Remove) Kind() string      { return KindRemove }
func (SetQuantity) Kind() string { return KindSetQuantity }
func (Clear) Kind() string       { return KindClear }

func (c Add) apply(items []domain.LineItem) ([]domain.LineItem, bool) {
	next := make([]domain.LineItem, len(items), len(items)+1)
	copy(next, items)

	// first-seen metadata wins
	for i := range next {
		if next[i].ID == c.Product.ID {
			if next[i].Quantity >= MaxQuantity {
				return items, false
			}
			next[i].Quantity++
			return next, true
		}
	}

	p := c.Product
	return append(next, domain.LineItem{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		Category: p.Category,
		Image:    p.Image,
		Rating:   p.Rating,
		Quantity: 1,
	}), true
}

func (c Remove) apply(items []domain.LineItem) ([]domain.LineItem, bool) {
	return without(items, c.ID)
}

func (c SetQuantity) apply(items []domain.LineItem) ([]domain.LineItem, bool) {
	if c.Quantity <= 0 {
		return without(items, c.ID)
	}

	quantity := min(c.Quantity, MaxQuantity)
	for i := range items {
		if items[i].ID != c.ID {
			continue
		}
		next := make([]domain.LineItem, len(items))
		copy(next, items)
		next[i].Quantity = quantity
		return next, true
	}
	return items, false
}

func (Clear) apply([]domain.LineItem) ([]domain.LineItem, bool) {
	return []domain.LineItem{}, true
}

func without(items []domain.LineItem, id domain.ProductID) ([]domain.LineItem, bool) {
	next := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(items) {
		return items, false
	}
	return next, true
}
