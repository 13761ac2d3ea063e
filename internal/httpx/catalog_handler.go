package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/config"
)

type CatalogHandler struct {
	Service   *catalog.Service
	Tokens    TokenVerifier
	Admins    AdminChecker
	WriteAuth string
	Log       *zap.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	r.Get("/categories", h.categories)

	r.Group(func(r chi.Router) {
		for _, mw := range catalogWriteGuard(h.WriteAuth, h.Tokens, h.Admins) {
			r.Use(mw)
		}
		r.Post("/products", h.create)
		r.Put("/products/{id}", h.update)
		r.Delete("/products/{id}", h.delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(h.Tokens))
		r.Post("/products/{id}/decrement-stock", h.decrementStock)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(h.Tokens))
		if h.WriteAuth == config.CatalogWriteAdmin {
			r.Use(RequireAdmin(h.Admins))
		}
		r.Get("/admin/products", h.listAdmin)
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid ID")
	}
	return id, nil
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := catalog.NewFilter(q["categories"], q.Get("minPrice"), q.Get("maxPrice"), q.Get("search"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	products, err := h.Service.List(ctx, f)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products, "count": len(products)})
}

func (h *CatalogHandler) listAdmin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.Service.ListAll(r.Context(), catalog.AdminFilter{Search: q.Get("search"), Category: q.Get("category")})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products, "count": len(products)})
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}

func (h *CatalogHandler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Service.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "categories": cats})
}

func (h *CatalogHandler) create(w http.ResponseWriter, r *http.Request) {
	var req catalog.ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	p, err := h.Service.Create(r.Context(), req, identity(r).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "product": p, "message": "Product created successfully"})
}

func (h *CatalogHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req catalog.ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	p, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p, "message": "Product updated successfully"})
}

func (h *CatalogHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if _, err := h.Service.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Product deleted successfully"})
}

func (h *CatalogHandler) decrementStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	p, err := h.Service.DecrementStock(r.Context(), id, req.Quantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}
