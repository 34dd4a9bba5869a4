package payments

import (
	"context"
	"errors"
)

var ErrBadSignature = errors.New("webhook signature verification failed")

// Gateway is the slice of the payment processor the store depends on:
// creating a hosted checkout page and re-reading a session's payment state.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

type SessionRequest struct {
	OrderID    string
	Currency   string
	SuccessURL string
	CancelURL  string
	Items      []LineItem
}

type LineItem struct {
	Name            string
	Size            string
	Qty             int
	UnitAmountCents int
}

type Session struct {
	ID   string
	URL  string
	Paid bool
}

type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutCompleted
	EventCheckoutExpired
)

// Event is the processor's webhook payload decoded into a tagged value.
// Shapes the store does not understand become EventUnknown instead of being
// poked at optimistically.
type Event struct {
	Kind      EventKind
	OrderID   string
	SessionID string
	Paid      bool
}
