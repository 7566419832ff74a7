package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Line is one product in a cart. UnitPrice is the catalog price at the time
// the product was first added and is what checkout charges.
type Line struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	ID        string    `json:"cartId"`
	UserID    string    `json:"userId"`
	Lines     []Line    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON renders an empty cart with "items": [].
func (c Cart) MarshalJSON() ([]byte, error) {
	type plain Cart
	p := plain(c)
	if p.Lines == nil {
		p.Lines = []Line{}
	}
	return json.Marshal(p)
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
