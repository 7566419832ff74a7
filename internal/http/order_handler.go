package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
)

const idempotencyKeyHeader = "Idempotency-Key"

type checkoutRequest struct {
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName"`
	AddressID     string `json:"addressId"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.Checkout.Checkout(r.Context(), checkout.Request{
		UserID:         userID(r),
		CustomerEmail:  req.CustomerEmail,
		CustomerName:   req.CustomerName,
		AddressID:      req.AddressID,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
		CorrelationID:  middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListByUser(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// ownedOrder loads the order named in the path and hides orders that belong
// to someone else.
func (h *Handler) ownedOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	o, err := h.svc.Orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err == nil && o.UserID != userID(r) {
		err = order.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return o, true
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Orders.Tracking(r.Context(), o.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	cancelled, err := h.svc.Orders.Cancel(r.Context(), o.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.statusChanged(cancelled)
	writeJSON(w, http.StatusOK, cancelled)
}

type payRequest struct {
	Method string `json:"method"`
}

type paymentResponse struct {
	Order   *order.Order    `json:"order"`
	Payment payment.Receipt `json:"payment"`
}

func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	paid, receipt, err := h.svc.Payments.Pay(r.Context(), o.ID, req.Method)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.statusChanged(paid)
	writeJSON(w, http.StatusOK, paymentResponse{Order: paid, Payment: receipt})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus is the operator override; it may move an order anywhere.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.svc.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.statusChanged(o)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	o, receipt, err := h.svc.Payments.Refund(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.statusChanged(o)
	writeJSON(w, http.StatusOK, paymentResponse{Order: o, Payment: receipt})
}
