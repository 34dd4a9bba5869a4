package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
)

// Mock OrderStore. SettlePaid re-checks status under the lock, mirroring the
// row lock the real repo takes inside its transaction.
type mockOrderStore struct {
	mu      sync.Mutex
	orders  map[string]*orders.Order
	settled map[string]int // settle applications per order
	stock   map[string]int // "product:size" -> stock
	missing map[string]bool // "product:size" variants that do not exist

	getErr error
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		orders:  map[string]*orders.Order{},
		settled: map[string]int{},
		stock:   map[string]int{},
		missing: map[string]bool{},
	}
}

func (m *mockOrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderStore) SettlePaid(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if o.Status != orders.StatusPending {
		return false, nil
	}
	for _, it := range o.Items {
		key := it.ProductID + ":" + it.Size
		if m.missing[key] {
			return false, orders.ErrVariantNotFound
		}
		next := m.stock[key] - it.Qty
		if next < 0 {
			next = 0
		}
		m.stock[key] = next
	}
	o.Status = orders.StatusPaid
	m.settled[orderID]++
	return true, nil
}

func (m *mockOrderStore) MarkExpired(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusFailed
	return true, nil
}

func pendingOrder(id string) *orders.Order {
	return &orders.Order{
		ID:          id,
		Status:      orders.StatusPending,
		AmountCents: 9800,
		Currency:    "usd",
		Items: []orders.Item{
			{ProductID: "p1", Name: "Boxy Tee", Size: "M", Qty: 2, PriceCents: 4900},
		},
	}
}

func completedEvent(orderID string) payments.Event {
	return payments.Event{
		Kind:      payments.EventCheckoutCompleted,
		OrderID:   orderID,
		SessionID: "cs_test_1",
		Paid:      true,
	}
}

func TestProcess_CompletedSettlesOnce(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 5
	r := &Reconciler{Orders: store}

	if err := r.Process(context.Background(), completedEvent("o1")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	if store.orders["o1"].Status != orders.StatusPaid {
		t.Errorf("expected order paid, got %s", store.orders["o1"].Status)
	}
	if store.stock["p1:M"] != 3 {
		t.Errorf("expected stock 3, got %d", store.stock["p1:M"])
	}
}

func TestProcess_DuplicateCompletedIsNoop(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 5
	r := &Reconciler{Orders: store}

	for i := 0; i < 3; i++ {
		if err := r.Process(context.Background(), completedEvent("o1")); err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
	}

	if store.settled["o1"] != 1 {
		t.Errorf("expected exactly one settlement, got %d", store.settled["o1"])
	}
	if store.stock["p1:M"] != 3 {
		t.Errorf("stock decremented more than once: %d", store.stock["p1:M"])
	}
}

func TestProcess_ConcurrentDeliveries(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 5
	r := &Reconciler{Orders: store}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Process(context.Background(), completedEvent("o1")); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("expected every delivery to be acknowledged, %d failed", failures.Load())
	}
	if store.settled["o1"] != 1 {
		t.Errorf("expected exactly one settlement, got %d", store.settled["o1"])
	}
}

func TestProcess_StockFlooredAtZero(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 1 // oversold by a concurrent checkout
	r := &Reconciler{Orders: store}

	if err := r.Process(context.Background(), completedEvent("o1")); err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if store.stock["p1:M"] != 0 {
		t.Errorf("expected stock floored at 0, got %d", store.stock["p1:M"])
	}
}

func TestProcess_CompletedWithoutOrderRef(t *testing.T) {
	r := &Reconciler{Orders: newMockOrderStore()}

	ev := completedEvent("")
	if err := r.Process(context.Background(), ev); !errors.Is(err, ErrMissingOrderRef) {
		t.Errorf("expected ErrMissingOrderRef, got: %v", err)
	}
}

func TestProcess_CompletedUnknownOrderFailsLoudly(t *testing.T) {
	r := &Reconciler{Orders: newMockOrderStore()}

	if err := r.Process(context.Background(), completedEvent("ghost")); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Errorf("expected order-not-found to propagate, got: %v", err)
	}
}

func TestProcess_CompletedButUnpaid(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 5
	r := &Reconciler{Orders: store}

	ev := completedEvent("o1")
	ev.Paid = false
	if err := r.Process(context.Background(), ev); err != nil {
		t.Fatalf("expected ack, got: %v", err)
	}
	if store.orders["o1"].Status != orders.StatusPending {
		t.Errorf("order should stay pending, got %s", store.orders["o1"].Status)
	}
	if store.settled["o1"] != 0 {
		t.Errorf("no settlement should have happened")
	}
}

func TestProcess_CompletedVariantMissing(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.missing["p1:M"] = true
	r := &Reconciler{Orders: store}

	if err := r.Process(context.Background(), completedEvent("o1")); !errors.Is(err, orders.ErrVariantNotFound) {
		t.Errorf("expected ErrVariantNotFound to propagate, got: %v", err)
	}
	if store.orders["o1"].Status != orders.StatusPending {
		t.Errorf("order must stay pending when settlement aborts, got %s", store.orders["o1"].Status)
	}
}

func TestProcess_ExpiredFailsPendingOrder(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	r := &Reconciler{Orders: store}

	ev := payments.Event{Kind: payments.EventCheckoutExpired, OrderID: "o1", SessionID: "cs_test_1"}
	if err := r.Process(context.Background(), ev); err != nil {
		t.Fatalf("expected ack, got: %v", err)
	}
	if store.orders["o1"].Status != orders.StatusFailed {
		t.Errorf("expected failed, got %s", store.orders["o1"].Status)
	}
}

func TestProcess_ExpiredAfterPaidIsNoop(t *testing.T) {
	store := newMockOrderStore()
	store.orders["o1"] = pendingOrder("o1")
	store.stock["p1:M"] = 5
	r := &Reconciler{Orders: store}

	if err := r.Process(context.Background(), completedEvent("o1")); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	ev := payments.Event{Kind: payments.EventCheckoutExpired, OrderID: "o1"}
	if err := r.Process(context.Background(), ev); err != nil {
		t.Fatalf("expected ack, got: %v", err)
	}
	if store.orders["o1"].Status != orders.StatusPaid {
		t.Errorf("paid is terminal, got %s", store.orders["o1"].Status)
	}
}

func TestProcess_ExpiredUnknownOrderIsNoop(t *testing.T) {
	r := &Reconciler{Orders: newMockOrderStore()}

	ev := payments.Event{Kind: payments.EventCheckoutExpired, OrderID: "ghost"}
	if err := r.Process(context.Background(), ev); err != nil {
		t.Errorf("expected ack, got: %v", err)
	}
}

func TestProcess_ExpiredWithoutOrderRefIsNoop(t *testing.T) {
	r := &Reconciler{Orders: newMockOrderStore()}

	ev := payments.Event{Kind: payments.EventCheckoutExpired, SessionID: "cs_test_1"}
	if err := r.Process(context.Background(), ev); err != nil {
		t.Errorf("expected ack, got: %v", err)
	}
}

func TestProcess_UnknownEventKind(t *testing.T) {
	r := &Reconciler{Orders: newMockOrderStore()}

	if err := r.Process(context.Background(), payments.Event{Kind: payments.EventUnknown}); err != nil {
		t.Errorf("unknown events must be acknowledged, got: %v", err)
	}
}
