package httpapi

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

type fakeCarts struct {
	carts map[string]*cart.Cart
}

func (f *fakeCarts) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	if c, ok := f.carts[userID]; ok {
		return c, nil
	}
	return &cart.Cart{ID: "cart-" + userID, UserID: userID}, nil
}

func (f *fakeCarts) AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	if quantity <= 0 {
		return nil, cart.ErrInvalidQuantity
	}
	if productID == "missing" {
		return nil, product.ErrNotFound
	}
	c, _ := f.GetCart(ctx, userID)
	c.Lines = append(c.Lines, cart.Line{ProductID: productID, ProductName: productID, Quantity: quantity, UnitPrice: decimal.NewFromInt(10)})
	f.carts[userID] = c
	return c, nil
}

func (f *fakeCarts) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	if quantity < 0 {
		return nil, cart.ErrInvalidQuantity
	}
	return f.GetCart(ctx, userID)
}

func (f *fakeCarts) RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	return f.GetCart(ctx, userID)
}

type fakeCheckout struct {
	mu   sync.Mutex
	reqs []checkout.Request
	fn   func(req checkout.Request) (*order.Order, error)
}

func (f *fakeCheckout) Checkout(ctx context.Context, req checkout.Request) (*order.Order, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.fn(req)
}

type fakeOrders struct {
	orders map[string]*order.Order
}

func (f *fakeOrders) Get(ctx context.Context, orderID string) (*order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Tracking(ctx context.Context, orderID string) (order.Tracking, error) {
	o, err := f.Get(ctx, orderID)
	if err != nil {
		return order.Tracking{}, err
	}
	return order.BuildTracking(o, o.CreatedAt), nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, orderID string, status order.Status) (*order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) Cancel(ctx context.Context, orderID string) (*order.Order, error) {
	return f.Transition(ctx, orderID, order.StatusCancelled)
}

func (f *fakeOrders) Transition(ctx context.Context, orderID string, to order.Status) (*order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !order.CanTransition(o.Status, to) {
		return nil, order.ErrInvalidTransition
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

type fakeProducts struct {
	products map[string]product.Product
}

func (f *fakeProducts) Create(ctx context.Context, p *product.Product) error {
	if p.Price.IsNegative() {
		return product.ErrInvalidPrice
	}
	f.products[p.ID] = *p
	return nil
}

func (f *fakeProducts) Get(ctx context.Context, productID string) (product.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error {
	p, ok := f.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	p.Price = price
	f.products[productID] = p
	return nil
}

type fakeInventory struct {
	items map[string]int
}

func (f *fakeInventory) Get(ctx context.Context, productID string) (inventory.StockItem, error) {
	v, ok := f.items[productID]
	if !ok {
		return inventory.StockItem{}, inventory.ErrNotFound
	}
	return inventory.StockItem{ProductID: productID, Available: v}, nil
}

func (f *fakeInventory) SetAvailable(ctx context.Context, productID string, available int) error {
	if available < 0 {
		return inventory.ErrNegativeStock
	}
	f.items[productID] = available
	return nil
}

type fakeAddresses struct {
	list []address.Address
}

func (f *fakeAddresses) Create(ctx context.Context, a *address.Address) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.ID = "addr-1"
	f.list = append(f.list, *a)
	return nil
}

func (f *fakeAddresses) ListByUser(ctx context.Context, userID string) ([]address.Address, error) {
	var out []address.Address
	for _, a := range f.list {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingStatuses struct {
	seen []string
}

func (r *recordingStatuses) ObserveStatusChange(status string) {
	r.seen = append(r.seen, status)
}

var _ PaymentService = (*payment.Service)(nil)
