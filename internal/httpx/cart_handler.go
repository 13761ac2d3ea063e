package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/cart"
)

type CartHandler struct {
	Service *cart.Service
	Tokens  TokenVerifier
	Log     *zap.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireToken(h.Tokens))
		r.Get("/cart", h.list)
		r.Post("/cart", h.add)
		r.Delete("/cart", h.clear)
		r.Put("/cart/{id}", h.update)
		r.Delete("/cart/{id}", h.remove)
	})
}

type cartItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.List(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cart": view.Items, "totalItems": view.TotalItems})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.Add(ctx, identity(r).UserID, req.ProductID, qty)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	msg := "Item added to cart"
	if res.Updated {
		msg = "Cart item updated"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     msg,
		"cartItem":    res.Line,
		"productName": res.ProductName,
	})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req cartItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	qty := 0
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	line, err := h.Service.Update(ctx, identity(r).UserID, id, qty)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cart item updated", "cartItem": line})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	line, err := h.Service.Remove(r.Context(), identity(r).UserID, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Item removed from cart", "removedItem": line})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.Clear(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cart cleared", "itemsRemoved": n})
}
