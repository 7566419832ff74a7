package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type createProductRequest struct {
	ID      string          `json:"id"`
	StoreID string          `json:"storeId"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Stock   int             `json:"stock"`
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(r, &req); err != nil || req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := product.Product{ID: req.ID, StoreID: req.StoreID, Name: req.Name, Price: req.Price, Stock: req.Stock}
	if err := h.svc.Products.Create(r.Context(), &p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type updatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	productID := chi.URLParam(r, "productId")
	if err := h.svc.Products.UpdatePrice(r.Context(), productID, req.Price); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.svc.Products.Get(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type adjustRequest struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
}

func (h *Handler) AdjustAvailability(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decode(r, &req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Inventory.SetAvailable(r.Context(), req.ProductID, req.Available); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
