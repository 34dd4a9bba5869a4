package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/KnyazyanNar/kasir-store/internal/checkout"
	kafkax "github.com/KnyazyanNar/kasir-store/internal/kafka"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

type CheckoutReq struct {
	Items []checkout.CartItem `json:"items"`
}

type CheckoutResp struct {
	URL string `json:"url"`
}

type CheckoutHandler struct {
	Checkout    *checkout.Service
	Gateway     payments.Gateway
	Orders      *orders.Repo
	Producer    *kafkax.Producer // order.created
	Redis       *redis.Client
	SiteURL     string
	ServiceName string
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/api/checkout", h.create)
	r.Get("/api/checkout/verify", h.verify)
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, url, err := h.Checkout.Start(ctx, req.Items, baseURL(r, h.SiteURL))
	if err != nil {
		writeError(w, checkoutStatus(err), err.Error())
		return
	}

	// cache status so the storefront can poll without hitting the DB
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, order.ID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"pending"}`, redisx.TTLStatusCache).Err()

	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:     order.ID,
			Items:       order.Items,
			AmountCents: order.AmountCents,
			Currency:    order.Currency,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	writeJSON(w, http.StatusOK, CheckoutResp{URL: url})
}

// verify re-checks payment state with the processor; the success redirect
// alone is never trusted.
func (h *CheckoutHandler) verify(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "payment verification failed")
		return
	}

	resp := map[string]any{"paid": sess.Paid}
	if order, err := h.Orders.GetBySession(ctx, sessionID); err == nil {
		resp["order_id"] = order.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func checkoutStatus(err error) int {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrProductInactive),
		errors.Is(err, checkout.ErrSizeUnavailable),
		errors.Is(err, checkout.ErrInsufficientStock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// baseURL picks the redirect origin: the request's Origin header, then the
// configured site URL, then a localhost default.
func baseURL(r *http.Request, siteURL string) string {
	if origin := r.Header.Get("Origin"); strings.HasPrefix(origin, "http") {
		return strings.TrimRight(origin, "/")
	}
	if strings.HasPrefix(siteURL, "http") {
		return strings.TrimRight(siteURL, "/")
	}
	return "http://localhost:3000"
}
