package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/metrics"
)

const serviceName = "order-service"

func NewRouter(h *Handler, m *metrics.Metrics, logger logrus.FieldLogger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/products/{productId}", h.GetProduct)
		r.Get("/inventory/{productId}", h.GetAvailability)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/items", h.AddItem)
				r.Put("/items/{productId}", h.UpdateQuantity)
				r.Delete("/items/{productId}", h.RemoveItem)
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Post("/", h.CreateAddress)
				r.Get("/", h.ListAddresses)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Checkout)
				r.Get("/", h.ListOrders)
				r.Get("/{orderId}", h.GetOrder)
				r.Get("/{orderId}/tracking", h.GetTracking)
				r.Post("/{orderId}/cancel", h.CancelOrder)
				r.Post("/{orderId}/pay", h.PayOrder)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{productId}/price", h.UpdatePrice)
			r.Post("/inventory/adjust", h.AdjustAvailability)
			r.Put("/orders/{orderId}/status", h.UpdateStatus)
			r.Post("/orders/{orderId}/refund", h.RefundOrder)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}
