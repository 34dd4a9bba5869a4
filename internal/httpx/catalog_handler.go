package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KnyazyanNar/kasir-store/internal/catalog"
)

// CatalogHandler serves the storefront's read-only view: active products
// with their variants and image galleries.
type CatalogHandler struct {
	Repo *catalog.Repo
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/api/products", h.list)
	r.Get("/api/products/{id}", h.get)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListActive(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load products")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Repo.GetActive(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
