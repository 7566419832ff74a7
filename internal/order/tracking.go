package order

import (
	"sort"
	"strings"
	"time"
)

const (
	paymentConfirmedAfter = 15 * time.Minute
	processingAfter       = 2 * time.Hour
)

type TrackingEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Tracking struct {
	OrderID           string          `json:"orderId"`
	OrderNumber       int64           `json:"orderNumber"`
	Status            Status          `json:"status"`
	TrackingNumber    string          `json:"trackingNumber"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	Events            []TrackingEvent `json:"events"`
}

// BuildTracking derives the customer-facing timeline from the order's status
// and timestamps. Processing time, and payment time when no paid date is
// stored, are estimates relative to creation.
func BuildTracking(o *Order, now time.Time) Tracking {
	t := Tracking{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		TrackingNumber: TrackingNumber(o),
	}

	t.Events = append(t.Events, TrackingEvent{
		Status:      "Order Placed",
		Description: "Your order has been placed",
		Timestamp:   o.CreatedAt,
	})

	fulfilment := o.Status >= StatusPaid && o.Status <= StatusDelivered
	// A cancelled or refunded order keeps its payment event if it was paid.
	if fulfilment || o.PaidDate != nil {
		paidAt := o.CreatedAt.Add(paymentConfirmedAfter)
		if o.PaidDate != nil {
			paidAt = *o.PaidDate
		}
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Payment Confirmed",
			Description: "Payment has been received",
			Timestamp:   paidAt,
		})
	}
	if fulfilment && o.Status >= StatusProcessing {
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Order Processing",
			Description: "Your order is being prepared",
			Timestamp:   o.CreatedAt.Add(processingAfter),
		})
	}
	if o.ShippedDate != nil {
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Order Shipped",
			Description: "Your order is on its way",
			Timestamp:   *o.ShippedDate,
		})
	}
	if o.DeliveredDate != nil {
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Order Delivered",
			Description: "Your order has been delivered",
			Timestamp:   *o.DeliveredDate,
		})
	}
	switch o.Status {
	case StatusCancelled:
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Order Cancelled",
			Description: "Your order has been cancelled",
			Timestamp:   o.UpdatedAt,
		})
	case StatusRefunded:
		t.Events = append(t.Events, TrackingEvent{
			Status:      "Order Refunded",
			Description: "Your payment has been refunded",
			Timestamp:   o.UpdatedAt,
		})
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		return t.Events[i].Timestamp.Before(t.Events[j].Timestamp)
	})

	t.EstimatedDelivery = estimateDelivery(o, now)
	return t
}

// TrackingNumber is "TRK", the creation date and the first eight hex digits
// of the order id.
func TrackingNumber(o *Order) string {
	hex := strings.ToUpper(strings.ReplaceAll(o.ID, "-", ""))
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "TRK" + o.CreatedAt.UTC().Format("20060102") + hex
}

func estimateDelivery(o *Order, now time.Time) *time.Time {
	var eta time.Time
	switch o.Status {
	case StatusPending, StatusPaid:
		eta = now.Add(5 * 24 * time.Hour)
	case StatusProcessing:
		eta = now.Add(3 * 24 * time.Hour)
	case StatusShipped:
		if o.ShippedDate != nil {
			eta = o.ShippedDate.Add(2 * 24 * time.Hour)
		} else {
			eta = now.Add(2 * 24 * time.Hour)
		}
	default:
		return nil
	}
	return &eta
}
