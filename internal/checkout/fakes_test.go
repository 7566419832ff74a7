package checkout

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/notify"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
)

// store is an in-memory database. A transaction holds txMu for its whole
// lifetime, which stands in for the row locks taken by checkout, and its
// writes are only applied on commit.
type store struct {
	txMu sync.Mutex

	mu        sync.Mutex
	carts     map[string]*cart.Cart
	addresses map[string]address.Address
	stock     map[string]int
	orders    map[string]*order.Order
	requests  map[string]string
	findMiss  int

	fail map[string]error

	begun      int
	committed  int
	rolledBack int
}

func newStore() *store {
	return &store{
		carts:     map[string]*cart.Cart{},
		addresses: map[string]address.Address{},
		stock:     map[string]int{},
		orders:    map[string]*order.Order{},
		requests:  map[string]string{},
		fail:      map[string]error{},
	}
}

func (s *store) addLine(userID, productID, name string, qty int, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = &cart.Cart{ID: uuid.NewString(), UserID: userID}
		s.carts[userID] = c
	}
	c.Lines = append(c.Lines, cart.Line{
		ProductID:   productID,
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	})
}

func (s *store) cartLines(userID string) []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		return append([]cart.Line(nil), c.Lines...)
	}
	return nil
}

func (s *store) stockOf(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

func (s *store) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *store) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *store) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if err := s.failure("begin"); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.Lock()
	s.begun++
	s.mu.Unlock()
	return &fakeTx{store: s}, nil
}

// fakeTx only implements Commit and Rollback; the repositories below never
// query through it.
type fakeTx struct {
	pgx.Tx
	store   *store
	pending []func()
	done    bool
}

func (tx *fakeTx) stage(fn func()) {
	tx.pending = append(tx.pending, fn)
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	if err := tx.store.failure("commit"); err != nil {
		return err
	}
	tx.done = true
	tx.store.mu.Lock()
	for _, fn := range tx.pending {
		fn()
	}
	tx.store.committed++
	tx.store.mu.Unlock()
	tx.store.txMu.Unlock()
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.rolledBack++
	tx.store.mu.Unlock()
	tx.store.txMu.Unlock()
	return nil
}

type fakeCarts struct{ s *store }

func (f fakeCarts) LockForCheckoutWithTx(ctx context.Context, tx pgx.Tx, userID string) (*cart.Cart, error) {
	if err := f.s.failure("lock_cart"); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	cp := *c
	cp.Lines = append([]cart.Line(nil), c.Lines...)
	return &cp, nil
}

func (f fakeCarts) ClearWithTx(ctx context.Context, tx pgx.Tx, cartID string) error {
	if err := f.s.failure("clear"); err != nil {
		return err
	}
	tx.(*fakeTx).stage(func() {
		for _, c := range f.s.carts {
			if c.ID == cartID {
				c.Lines = nil
			}
		}
	})
	return nil
}

type fakeAddresses struct{ s *store }

func (f fakeAddresses) GetForUserWithTx(ctx context.Context, tx pgx.Tx, userID, addressID string) (address.Address, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.addresses[addressID]
	if !ok || a.UserID != userID {
		return address.Address{}, address.ErrNotFound
	}
	return a, nil
}

type fakeInventory struct{ s *store }

func (f fakeInventory) CheckWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) ([]inventory.DepletedLine, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	requested := map[string]int{}
	for _, l := range lines {
		requested[l.ProductID] += l.Quantity
	}

	var depleted []inventory.DepletedLine
	seen := map[string]bool{}
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		if available := f.s.stock[l.ProductID]; requested[l.ProductID] > available {
			depleted = append(depleted, inventory.DepletedLine{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Requested:   requested[l.ProductID],
				Available:   available,
			})
		}
	}
	return depleted, nil
}

func (f fakeInventory) DecrementWithTx(ctx context.Context, tx pgx.Tx, lines []inventory.Line) error {
	if err := f.s.failure("decrement"); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, l := range lines {
		if f.s.stock[l.ProductID] < l.Quantity {
			return errors.Wrapf(inventory.ErrStockChanged, "product %s", l.ProductID)
		}
	}
	tx.(*fakeTx).stage(func() {
		for _, l := range lines {
			f.s.stock[l.ProductID] -= l.Quantity
		}
	})
	return nil
}

type fakeOrders struct{ s *store }

func (f fakeOrders) NextOrderNumberWithTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	next := order.FirstOrderNumber
	for _, o := range f.s.orders {
		if o.OrderNumber >= next {
			next = o.OrderNumber + 1
		}
	}
	return next, nil
}

func (f fakeOrders) CreateWithTx(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	if err := f.s.failure("create"); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	tx.(*fakeTx).stage(func() { f.s.orders[cp.ID] = &cp })
	return nil
}

func (f fakeOrders) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	if err := f.s.failure("get"); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f fakeOrders) numbers() []int64 {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []int64
	for _, o := range f.s.orders {
		out = append(out, o.OrderNumber)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeRequests struct{ s *store }

func requestKey(userID, key string) string { return userID + "/" + key }

func (f fakeRequests) Find(ctx context.Context, userID, key string) (string, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.findMiss > 0 {
		f.s.findMiss--
		return "", false, nil
	}
	id, ok := f.s.requests[requestKey(userID, key)]
	return id, ok, nil
}

func (f fakeRequests) BindWithTx(ctx context.Context, tx pgx.Tx, userID, key, orderID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.requests[requestKey(userID, key)]; ok {
		return ErrDuplicateRequest
	}
	tx.(*fakeTx).stage(func() { f.s.requests[requestKey(userID, key)] = orderID })
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Confirmation
}

func (f *fakeNotifier) Enqueue(c notify.Confirmation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (f *fakeObserver) ObserveCheckout(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = map[string]int{}
	}
	f.outcomes[outcome]++
}

func (f *fakeObserver) get(outcome string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[outcome]
}
