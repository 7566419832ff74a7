package notify

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
)

type ConfirmationItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Confirmation is the order-confirmation message handed to a Sink.
type Confirmation struct {
	OrderID         string                `json:"orderId"`
	OrderNumber     int64                 `json:"orderNumber"`
	UserID          string                `json:"userId"`
	CustomerEmail   string                `json:"customerEmail"`
	CustomerName    string                `json:"customerName"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Items           []ConfirmationItem    `json:"items"`
	PlacedAt        time.Time             `json:"placedAt"`
	CorrelationID   string                `json:"-"`
}

func FromOrder(o *order.Order, correlationID string) Confirmation {
	c := Confirmation{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PlacedAt:        o.CreatedAt,
		CorrelationID:   correlationID,
	}
	for _, it := range o.Items {
		c.Items = append(c.Items, ConfirmationItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return c
}

// partitionKey keeps a customer's confirmations ordered.
func (c Confirmation) partitionKey() string {
	if c.UserID == "" {
		return ""
	}
	return "customer:" + c.UserID
}
