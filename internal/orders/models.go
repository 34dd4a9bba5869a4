package orders

import "time"

// SessionPlaceholder fills stripe_session_id until the payment processor
// assigns a real one; the order row must exist before the processor call so
// that a failed call still leaves a record behind.
const SessionPlaceholder = "pending"

type Order struct {
	ID              string     `json:"id"`
	Status          Status     `json:"status"`
	AmountCents     int        `json:"amount_cents"`
	Currency        string     `json:"currency"`
	StripeSessionID string     `json:"stripe_session_id"`
	Items           []Item     `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

// Item is a snapshot of the catalog row taken at checkout time. It is never
// re-read from the live catalog, so later price edits do not touch an
// in-flight order.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Size       string `json:"size"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
	ImageURL   string `json:"image_url,omitempty"`
}

type Fulfillment struct {
	ID        string
	OrderID   string
	Status    string // QUEUED | SHIPPED
	CreatedAt time.Time
}
