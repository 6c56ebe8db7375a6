package httpx

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/go-chi/chi/v5"
	"net/http"
)

type CartService interface {
	Add(ctx context.Context, userID, variantID string, qty int) (cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, variantID string, qty int) (cart.Cart, error)
	Remove(ctx context.Context, userID, variantID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (cart.Cart, error)
}

type CartHandler struct {
	Service CartService
}

type AddItemReq struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type UpdateItemReq struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.add)
		r.Patch("/items/{variant_id}", h.update)
		r.Delete("/items/{variant_id}", h.remove)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Get(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Service.Add(r.Context(), callerFrom(r.Context()).UserID, req.VariantID, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemReq
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Service.UpdateQuantity(r.Context(), callerFrom(r.Context()).UserID, chi.URLParam(r, "variant_id"), req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Remove(r.Context(), callerFrom(r.Context()).UserID, chi.URLParam(r, "variant_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Clear(r.Context(), callerFrom(r.Context()).UserID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
