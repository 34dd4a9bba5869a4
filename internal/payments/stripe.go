package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, webhookSecret: webhookSecret}
}

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)

	for _, it := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(it.Qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(int64(it.UnitAmountCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%s (Size: %s)", it.Name, it.Size)),
				},
			},
		})
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripeSession(sess), nil
}

func (s *Stripe) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return fromStripeSession(sess), nil
}

// ParseEvent verifies the signature over the exact payload bytes and decodes
// the event into the store's tagged form.
func (s *Stripe) ParseEvent(payload []byte, sigHeader string) (Event, error) {
	if sigHeader == "" {
		return Event{}, fmt.Errorf("%w: missing signature header", ErrBadSignature)
	}
	ev, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		kind := EventCheckoutCompleted
		if ev.Type == stripe.EventTypeCheckoutSessionExpired {
			kind = EventCheckoutExpired
		}
		return Event{
			Kind:      kind,
			OrderID:   cs.Metadata["order_id"],
			SessionID: cs.ID,
			Paid:      cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}, nil
	default:
		return Event{Kind: EventUnknown}, nil
	}
}

func fromStripeSession(cs *stripe.CheckoutSession) *Session {
	return &Session{
		ID:   cs.ID,
		URL:  cs.URL,
		Paid: cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
}
