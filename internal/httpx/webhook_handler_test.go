package httpx

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
	"github.com/KnyazyanNar/kasir-store/internal/reconcile"
)

const testWebhookSecret = "whsec_test_secret"

type webhookOrderStore struct {
	mu      sync.Mutex
	orders  map[string]*orders.Order
	settled int
}

func (m *webhookOrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *webhookOrderStore) SettlePaid(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusPaid
	m.settled++
	return true, nil
}

func (m *webhookOrderStore) MarkExpired(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusFailed
	return true, nil
}

func newWebhookHandler(store *webhookOrderStore) *WebhookHandler {
	return &WebhookHandler{
		Stripe:     payments.NewStripe("sk_test_key", testWebhookSecret),
		Reconciler: &reconcile.Reconciler{Orders: store},
	}
}

func signedWebhookRequest(t *testing.T, eventType, orderID string) *http.Request {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"api_version": %q,
		"type": %q,
		"data": {
			"object": {
				"id": "cs_test_1",
				"payment_status": "paid",
				"metadata": {"order_id": %q}
			}
		}
	}`, stripe.APIVersion, eventType, orderID))
	at := time.Now()
	sig := webhook.ComputeSignature(at, payload, testWebhookSecret)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig)))
	return req
}

func TestWebhook_CompletedSettlesOrder(t *testing.T) {
	store := &webhookOrderStore{orders: map[string]*orders.Order{
		"o1": {ID: "o1", Status: orders.StatusPending, AmountCents: 4900},
	}}
	h := newWebhookHandler(store)

	rec := httptest.NewRecorder()
	h.handle(rec, signedWebhookRequest(t, "checkout.session.completed", "o1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || !resp["received"] {
		t.Errorf("expected {\"received\": true}, got %s", rec.Body.String())
	}
	if store.orders["o1"].Status != orders.StatusPaid {
		t.Errorf("expected order paid, got %s", store.orders["o1"].Status)
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	h := newWebhookHandler(&webhookOrderStore{orders: map[string]*orders.Order{}})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without signature, got %d", rec.Code)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	h := newWebhookHandler(&webhookOrderStore{orders: map[string]*orders.Order{}})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad signature, got %d", rec.Code)
	}
}

func TestWebhook_ProcessingFailureTriggersRetry(t *testing.T) {
	// completed event for an order that does not exist: the reconciler fails
	// and the handler must return a non-2xx so the delivery is retried
	h := newWebhookHandler(&webhookOrderStore{orders: map[string]*orders.Order{}})

	rec := httptest.NewRecorder()
	h.handle(rec, signedWebhookRequest(t, "checkout.session.completed", "ghost"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	store := &webhookOrderStore{orders: map[string]*orders.Order{}}
	h := newWebhookHandler(store)

	rec := httptest.NewRecorder()
	h.handle(rec, signedWebhookRequest(t, "invoice.paid", "o1"))

	if rec.Code != http.StatusOK {
		t.Errorf("expected unknown events to be acknowledged, got %d", rec.Code)
	}
	if store.settled != 0 {
		t.Errorf("unknown events must not settle anything")
	}
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	store := &webhookOrderStore{orders: map[string]*orders.Order{
		"o1": {ID: "o1", Status: orders.StatusPending},
	}}
	h := newWebhookHandler(store)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.handle(rec, signedWebhookRequest(t, "checkout.session.completed", "o1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if store.settled != 1 {
		t.Errorf("expected exactly one settlement, got %d", store.settled)
	}
}
