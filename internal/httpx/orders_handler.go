package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

type OrdersHandler struct {
	Repo  *orders.Repo
	Redis *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/api/orders/{id}", h.getStatus)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Repo.GetStatus(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}

	body, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
