package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KnyazyanNar/kasir-store/internal/auth"
	"github.com/KnyazyanNar/kasir-store/internal/catalog"
	"github.com/KnyazyanNar/kasir-store/internal/media"
)

const maxUploadSize = 10 << 20

// AdminHandler is the back office: product, variant and image management.
// Every route sits behind the session-cookie guard.
type AdminHandler struct {
	Catalog  *catalog.Repo
	Sessions *auth.Sessions
	Uploader media.Uploader
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(RequireAdmin(h.Sessions))
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/products/{id}", h.getProduct)
		r.Patch("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Put("/products/{id}/variants", h.upsertVariant)
		r.Put("/products/{id}/stock", h.bulkStock)
		r.Post("/products/{id}/images", h.addImage)
		r.Put("/products/{id}/images/order", h.reorderImages)
		r.Delete("/images/{id}", h.deleteImage)
	})
}

func adminStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrImageNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load products")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *AdminHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Name == "" || in.PriceCents <= 0 {
		writeError(w, http.StatusBadRequest, "name and a positive price_cents are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.CreateProduct(ctx, in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpdateProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.PriceCents != nil && *in.PriceCents <= 0 {
		writeError(w, http.StatusBadRequest, "price_cents must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.UpdateProduct(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) upsertVariant(w http.ResponseWriter, r *http.Request) {
	var in catalog.StockInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Size == "" || in.Stock < 0 {
		writeError(w, http.StatusBadRequest, "size and a non-negative stock are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Catalog.UpsertVariant(ctx, chi.URLParam(r, "id"), in.Size, in.Stock)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save variant")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *AdminHandler) bulkStock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Variants []catalog.StockInput `json:"variants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	for _, v := range in.Variants {
		if v.Size == "" || v.Stock < 0 {
			writeError(w, http.StatusBadRequest, "size and a non-negative stock are required")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.BulkUpsertStock(ctx, chi.URLParam(r, "id"), in.Variants); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update stock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) addImage(w http.ResponseWriter, r *http.Request) {
	if h.Uploader == nil {
		writeError(w, http.StatusInternalServerError, "image storage is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if !media.AllowedImageType(header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "invalid file type, allowed: JPEG, PNG, WebP, GIF")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	up, err := h.Uploader.Upload(ctx, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	img, err := h.Catalog.AddImage(ctx, chi.URLParam(r, "id"), up.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (h *AdminHandler) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	img, err := h.Catalog.GetImage(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}
	if err := h.Catalog.DeleteImage(ctx, img.ID); err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}

	// storage cleanup is best effort; the row is already gone
	if h.Uploader != nil {
		if id := media.PublicIDFromURL(img.URL); id != "" {
			_ = h.Uploader.Delete(ctx, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) reorderImages(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ImageIDs []string `json:"image_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(in.ImageIDs) == 0 {
		writeError(w, http.StatusBadRequest, "image_ids is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.ReorderImages(ctx, chi.URLParam(r, "id"), in.ImageIDs); err != nil {
		writeError(w, adminStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
