package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KnyazyanNar/kasir-store/internal/payments"
	"github.com/KnyazyanNar/kasir-store/internal/reconcile"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	Stripe     *payments.Stripe
	Reconciler *reconcile.Reconciler
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/api/webhooks/stripe", h.handle)
}

// handle acknowledges every verified event, no-ops included; a non-2xx makes
// the processor retry the whole delivery, which only processing failures
// should trigger.
func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.Stripe.ParseEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	if err := h.Reconciler.Process(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
