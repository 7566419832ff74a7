package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

type errorResponse struct {
	Error string `json:"error"`
}

type insufficientStockResponse struct {
	Error       string                   `json:"error"`
	ProductID   string                   `json:"productId"`
	ProductName string                   `json:"productName"`
	Requested   int                      `json:"requested"`
	Available   int                      `json:"available"`
	Lines       []inventory.DepletedLine `json:"lines"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

var badRequest = []error{
	checkout.ErrInvalidRequest,
	cart.ErrInvalidQuantity,
	address.ErrInvalid,
	order.ErrInvalidStatus,
	product.ErrInvalidPrice,
	product.ErrInvalidStock,
	inventory.ErrNegativeStock,
	payment.ErrInvalidMethod,
}

var notFound = []error{
	checkout.ErrAddressNotFound,
	order.ErrNotFound,
	product.ErrNotFound,
	inventory.ErrNotFound,
	address.ErrNotFound,
	cart.ErrLineNotFound,
}

// fail maps service errors onto status codes. Unknown errors are logged and
// hidden behind a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *checkout.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, insufficientStockResponse{
			Error:       "insufficient stock",
			ProductID:   stockErr.ProductID,
			ProductName: stockErr.ProductName,
			Requested:   stockErr.Requested,
			Available:   stockErr.Available,
			Lines:       stockErr.Lines,
		})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart is empty")
		return
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, payment.ErrDeclined):
		writeError(w, http.StatusPaymentRequired, "payment declined")
		return
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			writeError(w, http.StatusNotFound, target.Error())
			return
		}
	}

	h.logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
