package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderPaid    = "OrderPaid"
	EventOrderFailed  = "OrderFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	Items       []Item `json:"items"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type OrderPaidPayload struct {
	OrderID         string `json:"order_id"`
	StripeSessionID string `json:"stripe_session_id"`
	AmountCents     int    `json:"amount_cents"`
}

type OrderFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"` // e.g. SESSION_EXPIRED
}
