package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/KnyazyanNar/kasir-store/internal/catalog"
	kafkax "github.com/KnyazyanNar/kasir-store/internal/kafka"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

// Service turns order.paid events into fulfillment records. The Redis dedup
// is only a fast path; the unique order_id on fulfillments is what actually
// keeps replays from double-recording.
type Service struct {
	Orders            *orders.Repo
	Catalog           *catalog.Repo
	Redis             *redis.Client
	ServiceName       string
	LowStockThreshold int
}

func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "fulfillment", env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}

	order, err := s.Orders.Get(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	if order.Status != orders.StatusPaid {
		log.Printf("fulfillment: order %s is %s, not paid, skipping", order.ID, order.Status)
		return nil
	}

	created, err := s.Orders.CreateFulfillment(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("record fulfillment for %s: %w", order.ID, err)
	}
	if created {
		log.Printf("fulfillment: order %s queued (%d items, %d cents)", order.ID, len(order.Items), order.AmountCents)
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, order.ID)
	_ = s.Redis.Set(ctx, key, `{"status":"paid"}`, redisx.TTLStatusCache).Err()

	s.warnLowStock(ctx, order.Items)
	return nil
}

func (s *Service) warnLowStock(ctx context.Context, items []orders.Item) {
	if s.Catalog == nil || s.LowStockThreshold <= 0 {
		return
	}
	for _, it := range items {
		v, err := s.Catalog.VariantBySize(ctx, it.ProductID, it.Size)
		if err != nil || v == nil {
			continue
		}
		if v.Stock < s.LowStockThreshold {
			log.Printf("fulfillment: low stock on %s size %s: %d left", it.ProductID, it.Size, v.Stock)
		}
	}
}
