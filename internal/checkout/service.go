package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/notify"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
)

// Checkout outcomes reported to the Observer.
const (
	OutcomeCreated           = "created"
	OutcomeReplayed          = "replayed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeAddressNotFound   = "address_not_found"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Carts interface {
	LockForCheckoutWithTx(ctx context.Context, tx pgx.Tx, userID string) (*cart.Cart, error)
	ClearWithTx(ctx context.Context, tx pgx.Tx, cartID string) error
}

type Addresses interface {
	GetForUserWithTx(ctx context.Context, tx pgx.Tx, userID, addressID string) (address.Address, error)
}

type Inventory interface {
	CheckWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) ([]inventory.DepletedLine, error)
	DecrementWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) error
}

type Orders interface {
	NextOrderNumberWithTx(ctx context.Context, tx pgx.Tx) (int64, error)
	CreateWithTx(ctx context.Context, tx pgx.Tx, o *order.Order) error
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
}

// Notifier accepts confirmations without blocking.
type Notifier interface {
	Enqueue(c notify.Confirmation) bool
}

type Observer interface {
	ObserveCheckout(outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveCheckout(string) {}

type Request struct {
	UserID         string
	CustomerEmail  string
	CustomerName   string
	AddressID      string
	IdempotencyKey string
	CorrelationID  string
}

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return errors.Wrap(ErrInvalidRequest, "userId is required")
	case !strings.Contains(r.CustomerEmail, "@"):
		return errors.Wrap(ErrInvalidRequest, "customerEmail is required")
	case strings.TrimSpace(r.CustomerName) == "":
		return errors.Wrap(ErrInvalidRequest, "customerName is required")
	case r.AddressID == "":
		return errors.Wrap(ErrInvalidRequest, "addressId is required")
	}
	return nil
}

type Service struct {
	db        TxBeginner
	carts     Carts
	addresses Addresses
	stock     Inventory
	orders    Orders
	requests  RequestRepository
	notifier  Notifier
	observer  Observer
	logger    logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	db TxBeginner,
	carts Carts,
	addresses Addresses,
	stock Inventory,
	orders Orders,
	requests RequestRepository,
	notifier Notifier,
	logger logrus.FieldLogger,
	opts ...Option,
) *Service {
	s := &Service{
		db:        db,
		carts:     carts,
		addresses: addresses,
		stock:     stock,
		orders:    orders,
		requests:  requests,
		notifier:  notifier,
		observer:  noopObserver{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout turns the user's cart into a pending order. Stock, cart and order
// change together or not at all. The confirmation is queued after commit.
func (s *Service) Checkout(ctx context.Context, req Request) (*order.Order, error) {
	o, outcome, err := s.checkout(ctx, req)
	s.observer.ObserveCheckout(outcome)
	return o, err
}

func (s *Service) checkout(ctx context.Context, req Request) (*order.Order, string, error) {
	if err := req.validate(); err != nil {
		return nil, OutcomeInvalid, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id":        req.UserID,
		"correlation_id": req.CorrelationID,
	})

	if req.IdempotencyKey != "" {
		o, found, err := s.replay(ctx, req)
		if err != nil {
			return nil, OutcomeError, err
		}
		if found {
			log.WithField("order_id", o.ID).Info("checkout replayed")
			return o, OutcomeReplayed, nil
		}
	}

	placed, err := s.place(ctx, req)
	if err != nil {
		// A concurrent request with the same key may have committed while
		// this one waited on the cart lock. It then finds the cart already
		// cleared, or loses the race to bind the key.
		if req.IdempotencyKey != "" && (errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrEmptyCart)) {
			o, found, rerr := s.replay(ctx, req)
			if rerr != nil {
				return nil, OutcomeError, rerr
			}
			if found {
				log.WithField("order_id", o.ID).Info("checkout replayed after concurrent request")
				return o, OutcomeReplayed, nil
			}
			if errors.Is(err, ErrDuplicateRequest) {
				return nil, OutcomeError, errors.Wrap(err, "idempotency key lost")
			}
		}
		outcome := outcomeFor(err)
		if outcome == OutcomeError {
			log.WithError(err).Error("checkout failed")
		} else {
			log.WithError(err).Info("checkout rejected")
		}
		return nil, outcome, err
	}

	o, err := s.orders.GetByID(ctx, placed.ID)
	if err != nil {
		log.WithError(err).Warn("read back committed order")
		o = placed
	}

	s.notifier.Enqueue(notify.FromOrder(o, req.CorrelationID))

	log.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"total":        o.TotalAmount.StringFixed(2),
	}).Info("order placed")

	return o, OutcomeCreated, nil
}

func (s *Service) replay(ctx context.Context, req Request) (*order.Order, bool, error) {
	orderID, found, err := s.requests.Find(ctx, req.UserID, req.IdempotencyKey)
	if err != nil || !found {
		return nil, false, err
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, errors.Wrap(err, "load replayed order")
	}
	return o, true, nil
}

func (s *Service) place(ctx context.Context, req Request) (_ *order.Order, err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin checkout")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	c, err := s.carts.LockForCheckoutWithTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	addr, err := s.addresses.GetForUserWithTx(ctx, tx, req.UserID, req.AddressID)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	lines := stockLines(c.Lines)
	depleted, err := s.stock.CheckWithTx(ctx, tx, lines)
	if err != nil {
		return nil, err
	}
	if len(depleted) > 0 {
		return nil, newInsufficientStockError(depleted)
	}

	number, err := s.orders.NextOrderNumberWithTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	o := &order.Order{
		OrderNumber:     number,
		UserID:          req.UserID,
		Status:          order.StatusPending,
		TotalAmount:     c.Total(),
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		AddressID:       addr.ID,
		ShippingAddress: shippingAddress(addr),
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           orderItems(c.Lines),
	}
	if err = s.orders.CreateWithTx(ctx, tx, o); err != nil {
		return nil, err
	}

	if err = s.stock.DecrementWithTx(ctx, tx, lines); err != nil {
		if errors.Is(err, inventory.ErrStockChanged) {
			if again, cerr := s.stock.CheckWithTx(ctx, tx, lines); cerr == nil && len(again) > 0 {
				return nil, newInsufficientStockError(again)
			}
		}
		return nil, err
	}

	if err = s.carts.ClearWithTx(ctx, tx, c.ID); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if err = s.requests.BindWithTx(ctx, tx, req.UserID, req.IdempotencyKey, o.ID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit checkout")
	}
	return o, nil
}

func outcomeFor(err error) string {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.Is(err, ErrAddressNotFound):
		return OutcomeAddressNotFound
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalid
	}
	return OutcomeError
}

func stockLines(lines []cart.Line) []inventory.Line {
	out := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, inventory.Line{ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity})
	}
	return out
}

func orderItems(lines []cart.Line) []order.Item {
	out := make([]order.Item, 0, len(lines))
	for _, l := range lines {
		out = append(out, order.Item{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
		})
	}
	return out
}

func shippingAddress(a address.Address) order.ShippingAddress {
	return order.ShippingAddress{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
