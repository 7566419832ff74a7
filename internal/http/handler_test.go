package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/logging"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/metrics"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

type testServer struct {
	router    http.Handler
	checkout  *fakeCheckout
	orders    *fakeOrders
	products  *fakeProducts
	inventory *fakeInventory
	statuses  *recordingStatuses
}

func newTestServer() *testServer {
	ts := &testServer{
		checkout: &fakeCheckout{fn: func(req checkout.Request) (*order.Order, error) {
			return &order.Order{ID: "o-new", OrderNumber: 100000001, UserID: req.UserID, Status: order.StatusPending}, nil
		}},
		orders: &fakeOrders{orders: map[string]*order.Order{
			"o1": {ID: "o1", OrderNumber: 100000001, UserID: "u1", Status: order.StatusPending,
				TotalAmount: decimal.NewFromInt(25), CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
			"o2": {ID: "o2", OrderNumber: 100000002, UserID: "u2", Status: order.StatusPending,
				TotalAmount: decimal.NewFromInt(99999)},
			"o3": {ID: "o3", OrderNumber: 100000003, UserID: "u1", Status: order.StatusShipped},
		}},
		products:  &fakeProducts{products: map[string]product.Product{"p1": {ID: "p1", Name: "Widget", Price: decimal.NewFromInt(10)}}},
		inventory: &fakeInventory{items: map[string]int{"p1": 4}},
		statuses:  &recordingStatuses{},
	}

	logger := logging.Discard()
	h := NewHandler(Services{
		Carts:     &fakeCarts{carts: map[string]*cart.Cart{}},
		Checkout:  ts.checkout,
		Orders:    ts.orders,
		Payments:  payment.NewService(ts.orders, decimal.NewFromInt(10000), logger),
		Products:  ts.products,
		Inventory: ts.inventory,
		Addresses: &fakeAddresses{},
	}, ts.statuses, logger)
	ts.router = NewRouter(h, metrics.New("test"), logger, 5*time.Second)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(userIDHeader, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "order-service", body["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodGet, "/health", "", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ecommerce_test_http_requests_total")
}

func TestRequiresUserHeader(t *testing.T) {
	ts := newTestServer()
	for _, path := range []string{"/api/cart", "/api/orders", "/api/addresses"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestCheckout_Created(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/api/orders", "u1", map[string]string{
		"customerEmail": "ada@example.com",
		"customerName":  "Ada",
		"addressId":     "addr-1",
	}, idempotencyKeyHeader, "key-1")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "o-new", body["orderId"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, ts.checkout.reqs, 1)
	got := ts.checkout.reqs[0]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Equal(t, "addr-1", got.AddressID)
	assert.NotEmpty(t, got.CorrelationID)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty cart", checkout.ErrEmptyCart, http.StatusUnprocessableEntity},
		{"address", checkout.ErrAddressNotFound, http.StatusNotFound},
		{"invalid", errors.Wrap(checkout.ErrInvalidRequest, "customerEmail is required"), http.StatusBadRequest},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.checkout.fn = func(checkout.Request) (*order.Order, error) { return nil, tt.err }

			rec := ts.do(t, http.MethodPost, "/api/orders", "u1", map[string]string{"addressId": "a"})
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "connection reset")
			}
		})
	}
}

func TestCheckout_InsufficientStockBody(t *testing.T) {
	ts := newTestServer()
	ts.checkout.fn = func(checkout.Request) (*order.Order, error) {
		return nil, &checkout.InsufficientStockError{
			ProductID: "C", ProductName: "Gamma", Requested: 5, Available: 3,
			Lines: []inventory.DepletedLine{{ProductID: "C", ProductName: "Gamma", Requested: 5, Available: 3}},
		}
	}

	rec := ts.do(t, http.MethodPost, "/api/orders", "u1", map[string]string{"addressId": "a"})
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody[insufficientStockResponse](t, rec)
	assert.Equal(t, "C", body.ProductID)
	assert.Equal(t, 5, body.Requested)
	assert.Equal(t, 3, body.Available)
	assert.Len(t, body.Lines, 1)
}

func TestCheckout_RejectsUnknownFields(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/api/orders", "u1", map[string]string{"totalAmount": "0.01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.checkout.reqs)
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/api/orders/o1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(100000001), body["orderNumber"])

	rec = ts.do(t, http.MethodGet, "/api/orders/o2", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "orders of other users are hidden")

	rec = ts.do(t, http.MethodGet, "/api/orders/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/api/orders", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/orders", "nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetTracking(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/api/orders/o1/tracking", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tr order.Tracking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "TRK20260102O1", tr.TrackingNumber)
	require.NotEmpty(t, tr.Events)
	assert.Equal(t, "Order Placed", tr.Events[0].Status)
}

func TestCancelOrder(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/orders/o1/cancel", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusCancelled, ts.orders.orders["o1"].Status)
	assert.Equal(t, []string{"cancelled"}, ts.statuses.seen)

	rec = ts.do(t, http.MethodPost, "/api/orders/o3/cancel", "u1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "shipped orders cannot be cancelled")
}

func TestPayOrder(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/orders/o1/pay", "u1", map[string]string{"method": "card"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[paymentResponse](t, rec)
	assert.Equal(t, "PAY-100000001", body.Payment.TransactionID)
	assert.Equal(t, order.StatusPaid, body.Order.Status)
	assert.Equal(t, []string{"paid"}, ts.statuses.seen)

	rec = ts.do(t, http.MethodPost, "/api/orders/o2/pay", "u2", map[string]string{"method": "card"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/orders/o2/pay", "u2", map[string]string{"method": "iou"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPut, "/api/admin/orders/o3/status", "", map[string]string{"status": "Delivered"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusDelivered, ts.orders.orders["o3"].Status)

	rec = ts.do(t, http.MethodPut, "/api/admin/orders/o3/status", "", map[string]string{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/admin/orders/nope/status", "", map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRefund(t *testing.T) {
	ts := newTestServer()
	ts.orders.orders["o1"].Status = order.StatusCancelled

	rec := ts.do(t, http.MethodPost, "/api/admin/orders/o1/refund", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusRefunded, ts.orders.orders["o1"].Status)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/o3/refund", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCatalogAndInventory(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/admin/products", "", map[string]any{
		"id": "p2", "name": "Gadget", "price": "12.50", "stock": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/admin/products/p2/price", "", map[string]any{"price": "11.00"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.products.products["p2"].Price.Equal(decimal.NewFromInt(11)))

	rec = ts.do(t, http.MethodGet, "/api/products/p2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/products/none", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/inventory/adjust", "", map[string]any{"productId": "p1", "available": 9})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/inventory/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, decodeBody[inventory.StockItem](t, rec).Available)

	rec = ts.do(t, http.MethodPost, "/api/admin/inventory/adjust", "", map[string]any{"productId": "p1", "available": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartAndAddresses(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/cart/items", "u1", map[string]any{"productId": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Len(t, body["items"], 1)

	rec = ts.do(t, http.MethodPost, "/api/cart/items", "u1", map[string]any{"productId": "p1", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/cart/items", "u1", map[string]any{"productId": "missing", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/cart/items/p1", "u1", map[string]any{"quantity": -2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/cart/items/p1", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/addresses", "u1", map[string]string{
		"fullName": "Ada", "line1": "1 Way", "city": "London", "postalCode": "N1", "country": "GB",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/addresses", "u1", map[string]string{"fullName": "Ada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/addresses", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)
}
