package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Carts.GetCart(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.Carts.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.svc.Carts.UpdateQuantity(r.Context(), userID(r), chi.URLParam(r, "productId"), req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Carts.RemoveItem(r.Context(), userID(r), chi.URLParam(r, "productId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	var a address.Address
	if err := decode(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = ""
	a.UserID = userID(r)

	if err := h.svc.Addresses.Create(r.Context(), &a); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Addresses.ListByUser(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []address.Address{}
	}
	writeJSON(w, http.StatusOK, list)
}
