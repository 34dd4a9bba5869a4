package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/KnyazyanNar/kasir-store/internal/catalog"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidItem       = errors.New("invalid cart item")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not available")
	ErrSizeUnavailable   = errors.New("size unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoSessionURL      = errors.New("payment session URL not returned")
)

// CartItem is the untrusted client cart entry: ids and quantities only.
// Prices and names are always taken from the catalog, never from the client.
type CartItem struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type CatalogStore interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	VariantBySize(ctx context.Context, productID, size string) (*catalog.Variant, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *orders.Order) error
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error
}

type Service struct {
	Catalog  CatalogStore
	Orders   OrderStore
	Gateway  payments.Gateway
	Currency string
}

// Start validates the cart against the live catalog, persists a pending
// order with a priced snapshot, and opens a hosted checkout session with the
// order id embedded in processor metadata. The stock check here is
// point-in-time only; settlement is where overdrafts get absorbed.
func (s *Service) Start(ctx context.Context, items []CartItem, baseURL string) (*orders.Order, string, error) {
	if len(items) == 0 {
		return nil, "", ErrEmptyCart
	}
	for _, it := range items {
		if it.ProductID == "" || it.Size == "" || it.Quantity < 1 {
			return nil, "", fmt.Errorf("%w: product_id=%q size=%q quantity=%d",
				ErrInvalidItem, it.ProductID, it.Size, it.Quantity)
		}
	}

	ids := dedupe(items)
	products, err := s.Catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("load products: %w", err)
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if !p.IsActive {
			return nil, "", fmt.Errorf("%w: %s", ErrProductInactive, p.Name)
		}
	}

	lineItems := make([]orders.Item, 0, len(items))
	total := 0
	for _, it := range items {
		p := products[it.ProductID]
		v, err := s.Catalog.VariantBySize(ctx, it.ProductID, it.Size)
		if err != nil {
			return nil, "", fmt.Errorf("load variant: %w", err)
		}
		if v == nil {
			return nil, "", fmt.Errorf("%w: %s size %s", ErrSizeUnavailable, p.Name, it.Size)
		}
		if v.Stock < it.Quantity {
			return nil, "", fmt.Errorf("%w: %s size %s (requested %d, available %d)",
				ErrInsufficientStock, p.Name, it.Size, it.Quantity, v.Stock)
		}
		lineItems = append(lineItems, orders.Item{
			ProductID:  p.ID,
			Name:       p.Name,
			Size:       it.Size,
			Qty:        it.Quantity,
			PriceCents: p.PriceCents, // server-side price only
			ImageURL:   p.ImageURL,
		})
		total += p.PriceCents * it.Quantity
	}

	order := &orders.Order{
		AmountCents: total,
		Currency:    s.Currency,
		Items:       lineItems,
	}
	if err := s.Orders.Create(ctx, order); err != nil {
		return nil, "", fmt.Errorf("create order: %w", err)
	}

	req := payments.SessionRequest{
		OrderID:    order.ID,
		Currency:   s.Currency,
		SuccessURL: baseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  baseURL + "/cart",
	}
	for _, li := range lineItems {
		req.Items = append(req.Items, payments.LineItem{
			Name:            li.Name,
			Size:            li.Size,
			Qty:             li.Qty,
			UnitAmountCents: li.PriceCents,
		})
	}

	sess, err := s.Gateway.CreateSession(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("payment session: %w", err)
	}
	if sess.URL == "" {
		return nil, "", ErrNoSessionURL
	}

	if err := s.Orders.SetPaymentSession(ctx, order.ID, sess.ID); err != nil {
		return nil, "", fmt.Errorf("attach payment session: %w", err)
	}
	order.StripeSessionID = sess.ID
	return order, sess.URL, nil
}

func dedupe(items []CartItem) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			out = append(out, it.ProductID)
		}
	}
	return out
}
