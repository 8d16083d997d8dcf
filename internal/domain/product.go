package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// prices and totals go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductID is an opaque catalog key. Upstream catalogs send it either as a
// JSON number or a string; both normalise to the same textual form.
type ProductID string

func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("product id: %w", err)
		}
		*id = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product is one entry of the remote catalog. It is also the payload of an
// add-to-cart command.
type Product struct {
	ID          ProductID       `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      Rating          `json:"rating"`
}
