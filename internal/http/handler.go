package httpapi

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*order.Order, error)
}

type OrderService interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	Tracking(ctx context.Context, orderID string) (order.Tracking, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) (*order.Order, error)
	Cancel(ctx context.Context, orderID string) (*order.Order, error)
}

type PaymentService interface {
	Pay(ctx context.Context, orderID, method string) (*order.Order, payment.Receipt, error)
	Refund(ctx context.Context, orderID string) (*order.Order, payment.Receipt, error)
}

type AddressStore interface {
	Create(ctx context.Context, a *address.Address) error
	ListByUser(ctx context.Context, userID string) ([]address.Address, error)
}

// StatusObserver is told about every status an order is moved into.
type StatusObserver interface {
	ObserveStatusChange(status string)
}

type Services struct {
	Carts     CartService
	Checkout  CheckoutService
	Orders    OrderService
	Payments  PaymentService
	Products  product.Repository
	Inventory inventory.Repository
	Addresses AddressStore
}

type Handler struct {
	svc      Services
	statuses StatusObserver
	logger   logrus.FieldLogger
}

func NewHandler(svc Services, statuses StatusObserver, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, statuses: statuses, logger: logger}
}

func (h *Handler) statusChanged(o *order.Order) {
	if h.statuses != nil {
		h.statuses.ObserveStatusChange(o.Status.String())
	}
}
