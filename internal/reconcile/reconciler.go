package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/KnyazyanNar/kasir-store/internal/kafka"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

// ErrMissingOrderRef means a completed payment arrived without an order id
// in its metadata. That is metadata corruption, not a benign race, so it
// surfaces as a processing failure and the processor retries.
var ErrMissingOrderRef = errors.New("missing order_id in session metadata")

type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	SettlePaid(ctx context.Context, orderID string) (bool, error)
	MarkExpired(ctx context.Context, orderID string) (bool, error)
}

// Reconciler applies payment-result events to orders exactly once. Webhook
// deliveries are at-least-once and may be reordered; the only defense is the
// status re-check inside the settlement transaction, never a cache.
type Reconciler struct {
	Orders         OrderStore
	Redis          *redis.Client    // optional status cache
	PaidProducer   *kafkax.Producer // optional, order.paid
	FailedProducer *kafkax.Producer // optional, order.failed
	ServiceName    string
}

func (r *Reconciler) Process(ctx context.Context, ev payments.Event) error {
	switch ev.Kind {
	case payments.EventCheckoutCompleted:
		return r.completed(ctx, ev)
	case payments.EventCheckoutExpired:
		return r.expired(ctx, ev)
	default:
		// acknowledge and ignore
		return nil
	}
}

func (r *Reconciler) completed(ctx context.Context, ev payments.Event) error {
	if ev.OrderID == "" {
		return ErrMissingOrderRef
	}
	if !ev.Paid {
		log.Printf("webhook: session %s completed without payment, order %s left pending", ev.SessionID, ev.OrderID)
		return nil
	}

	order, err := r.Orders.Get(ctx, ev.OrderID)
	if err != nil {
		// includes ErrOrderNotFound: fail loudly, the processor will retry
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}
	if order.Status.Terminal() {
		log.Printf("webhook: order %s already %s, skipping", order.ID, order.Status)
		return nil
	}

	applied, err := r.Orders.SettlePaid(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("settle order %s: %w", ev.OrderID, err)
	}
	if !applied {
		// lost the race against an overlapping delivery
		log.Printf("webhook: order %s settled concurrently, skipping", ev.OrderID)
		return nil
	}

	r.cacheStatus(ctx, ev.OrderID, orders.StatusPaid)
	r.publish(r.PaidProducer, orders.EventOrderPaid, ev.OrderID, orders.OrderPaidPayload{
		OrderID:         ev.OrderID,
		StripeSessionID: ev.SessionID,
		AmountCents:     order.AmountCents,
	})
	log.Printf("webhook: order %s marked paid", ev.OrderID)
	return nil
}

func (r *Reconciler) expired(ctx context.Context, ev payments.Event) error {
	if ev.OrderID == "" {
		log.Printf("webhook: expired session %s carries no order_id, ignoring", ev.SessionID)
		return nil
	}

	order, err := r.Orders.Get(ctx, ev.OrderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		log.Printf("webhook: order %s not found for expired session, ignoring", ev.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}
	if order.Status != orders.StatusPending {
		return nil
	}

	applied, err := r.Orders.MarkExpired(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("expire order %s: %w", ev.OrderID, err)
	}
	if !applied {
		return nil
	}

	r.cacheStatus(ctx, ev.OrderID, orders.StatusFailed)
	r.publish(r.FailedProducer, orders.EventOrderFailed, ev.OrderID, orders.OrderFailedPayload{
		OrderID: ev.OrderID,
		Reason:  "SESSION_EXPIRED",
	})
	log.Printf("webhook: order %s marked failed", ev.OrderID)
	return nil
}

func (r *Reconciler) cacheStatus(ctx context.Context, orderID string, s orders.Status) {
	if r.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = r.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, s), redisx.TTLStatusCache).Err()
}

func (r *Reconciler) publish(p *kafkax.Producer, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
