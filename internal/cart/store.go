package cart

import (
	"github.com/shopspring/decimal"

	"github.com/shophub/storefront/internal/domain"
)

// Apply computes the state that follows state once cmd is applied. It has no
// side effects and never modifies state. Commands that change nothing return
// state as given; otherwise Total and ItemCount are recomputed from the new
// item list.
func Apply(state domain.CartState, cmd Command) domain.CartState {
	if cmd == nil {
		return state
	}

	items, changed := cmd.apply(state.Items)
	if !changed {
		return state
	}
	return withTotals(items)
}

func withTotals(items []domain.LineItem) domain.CartState {
	if len(items) == 0 {
		return domain.EmptyCart()
	}

	total := decimal.Zero
	count := 0
	for _, item := range items {
		total = total.Add(item.Subtotal())
		count += item.Quantity
	}

	return domain.CartState{
		Items:     items,
		Total:     total,
		ItemCount: count,
	}
}
