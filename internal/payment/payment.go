package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
)

var (
	ErrDeclined      = errors.New("payment declined")
	ErrInvalidMethod = errors.New("unsupported payment method")
)

var methods = map[string]bool{
	"card":          true,
	"bank_transfer": true,
	"wallet":        true,
}

// Orders is the part of the order service the simulator drives.
type Orders interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	Transition(ctx context.Context, orderID string, to order.Status) (*order.Order, error)
}

type Receipt struct {
	TransactionID string          `json:"transactionId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method,omitempty"`
	Kind          string          `json:"kind"`
}

// Service is a deterministic stand-in for a payment gateway: it charges any
// supported method up to DeclineAbove and refunds cancelled orders.
type Service struct {
	orders       Orders
	declineAbove decimal.Decimal
	logger       logrus.FieldLogger
}

func NewService(orders Orders, declineAbove decimal.Decimal, logger logrus.FieldLogger) *Service {
	return &Service{orders: orders, declineAbove: declineAbove, logger: logger}
}

// Pay charges the order total and moves the order from pending to paid.
func (s *Service) Pay(ctx context.Context, orderID, method string) (*order.Order, Receipt, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if !methods[method] {
		return nil, Receipt{}, errors.Wrapf(ErrInvalidMethod, "%q", method)
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, Receipt{}, err
	}
	if !order.CanTransition(o.Status, order.StatusPaid) {
		return nil, Receipt{}, errors.Wrapf(order.ErrInvalidTransition, "%s -> %s", o.Status, order.StatusPaid)
	}
	if o.TotalAmount.GreaterThan(s.declineAbove) {
		s.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"amount":   o.TotalAmount.StringFixed(2),
		}).Warn("payment declined")
		return nil, Receipt{}, ErrDeclined
	}

	paid, err := s.orders.Transition(ctx, orderID, order.StatusPaid)
	if err != nil {
		return nil, Receipt{}, err
	}

	r := Receipt{
		TransactionID: transactionID("PAY", paid.OrderNumber),
		OrderID:       paid.ID,
		Amount:        paid.TotalAmount,
		Method:        method,
		Kind:          "charge",
	}
	s.logger.WithFields(logrus.Fields{"order_id": orderID, "transaction_id": r.TransactionID}).Info("payment captured")
	return paid, r, nil
}

// Refund returns the charge of a cancelled order and marks it refunded.
func (s *Service) Refund(ctx context.Context, orderID string) (*order.Order, Receipt, error) {
	refunded, err := s.orders.Transition(ctx, orderID, order.StatusRefunded)
	if err != nil {
		return nil, Receipt{}, err
	}

	r := Receipt{
		TransactionID: transactionID("REF", refunded.OrderNumber),
		OrderID:       refunded.ID,
		Amount:        refunded.TotalAmount,
		Kind:          "refund",
	}
	s.logger.WithFields(logrus.Fields{"order_id": orderID, "transaction_id": r.TransactionID}).Info("payment refunded")
	return refunded, r, nil
}

func transactionID(prefix string, orderNumber int64) string {
	return fmt.Sprintf("%s-%d", prefix, orderNumber)
}
