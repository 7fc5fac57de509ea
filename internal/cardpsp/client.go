// Package cardpsp wraps the card payment-service-provider integration
// (Stripe-shaped): creating and canceling payment intents, creating
// charges, and parsing signed webhook events. It is narrowed from the
// teacher's full Stripe-sync surface (customers, products, prices,
// subscriptions) down to just the PaymentIntent + webhook-event slice this
// module's card flow touches.
package cardpsp

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// NewPaymentIntent describes a payment intent to be opened against the card
// PSP.
type NewPaymentIntent struct {
	Amount      money.Amount
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentIntent mirrors the card PSP's representation of an open intent.
type PaymentIntent struct {
	ID             string
	Amount         money.Amount
	AmountReceived money.Amount
	Currency       string
	Status         string
	ChargeID       *string
}

// NewCharge describes a direct charge to be created against the card PSP.
type NewCharge struct {
	Amount      money.Amount
	Currency    string
	Source      string
	Description string
}

// Charge mirrors the card PSP's representation of a created charge.
type Charge struct {
	ID       string
	Amount   money.Amount
	Currency string
	Status   string
}

// EventKind enumerates the webhook event types this module's card flow
// acts on. Every other Stripe event type is parsed but routed to
// EventKindOther, logged, and acknowledged.
type EventKind string

const (
	EventKindPaymentIntentAmountCapturableUpdated EventKind = "payment_intent.amount_capturable_updated"
	EventKindPaymentIntentPaymentFailed            EventKind = "payment_intent.payment_failed"
	EventKindPaymentIntentSucceeded                EventKind = "payment_intent.succeeded"
	EventKindOther                                 EventKind = "other"
)

// Event is the canonical, already-verified representation of an inbound
// card-PSP webhook event.
type Event struct {
	ID              string
	Kind            EventKind
	RawType         string
	PaymentIntentID string
	Amount          money.Amount
	AmountReceived  money.Amount
	ChargeID        *string
}

// Client is the card PSP surface the invoice service and webhook ingress
// depend on.
type Client interface {
	CreatePaymentIntent(ctx context.Context, in NewPaymentIntent) (PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	CreateCharge(ctx context.Context, in NewCharge, metadata map[string]string) (Charge, error)
	ParseWebhook(body []byte, signatureHeader string) (Event, error)
}

// RealClient wraps stripe-go's v82 client, the same stripe.Client shape the
// teacher's StripeService holds, narrowed to one API key and one webhook
// secret (no multi-tenant Configure step).
type RealClient struct {
	client        *stripe.Client
	webhookSecret string
	log           *zap.Logger
}

// NewRealClient builds a RealClient against a live Stripe account.
func NewRealClient(log *zap.Logger, apiKey, webhookSecret string) *RealClient {
	return &RealClient{
		client:        stripe.NewClient(apiKey, nil),
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// CreatePaymentIntent opens a PaymentIntent restricted to card payment
// methods with automatic capture, per 4.E.3's params (amount, currency,
// allowed_source_types=[card], capture_method=automatic).
func (c *RealClient) CreatePaymentIntent(ctx context.Context, in NewPaymentIntent) (PaymentIntent, error) {
	amount, err := in.Amount.Int64()
	if err != nil {
		return PaymentIntent{}, errs.Wrap(errs.Internal, err, "cardpsp: payment intent amount does not fit in int64")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(in.Currency),
		Description:        stripe.String(in.Description),
		Metadata:           in.Metadata,
		PaymentMethodTypes: []*string{stripe.String("card")},
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	}

	c.log.Info("creating card PSP payment intent", zap.Int64("amount", amount), zap.String("currency", in.Currency))
	pi, err := c.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		c.log.Error("failed to create card PSP payment intent", zap.Error(err))
		return PaymentIntent{}, errs.Wrap(errs.Internal, err, "cardpsp: create payment intent")
	}
	return mapPaymentIntent(pi)
}

// CancelPaymentIntent cancels a previously-created PaymentIntent. Called
// best-effort from 4.E.5; the caller does not undo a completed DB delete on
// failure here.
func (c *RealClient) CancelPaymentIntent(ctx context.Context, id string) error {
	_, err := c.client.V1PaymentIntents.Cancel(ctx, id, &stripe.PaymentIntentCancelParams{})
	if err != nil {
		c.log.Error("failed to cancel card PSP payment intent", zap.String("payment_intent_id", id), zap.Error(err))
		return errs.Wrap(errs.Internal, err, "cardpsp: cancel payment intent")
	}
	return nil
}

// CreateCharge creates a direct charge against the card PSP.
func (c *RealClient) CreateCharge(ctx context.Context, in NewCharge, metadata map[string]string) (Charge, error) {
	amount, err := in.Amount.Int64()
	if err != nil {
		return Charge{}, errs.Wrap(errs.Internal, err, "cardpsp: charge amount does not fit in int64")
	}

	params := &stripe.ChargeCreateParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(in.Currency),
		Source:      &stripe.ChargeCreateSourceParams{Token: stripe.String(in.Source)},
		Description: stripe.String(in.Description),
		Metadata:    metadata,
	}

	ch, err := c.client.V1Charges.Create(ctx, params)
	if err != nil {
		c.log.Error("failed to create card PSP charge", zap.Error(err))
		return Charge{}, errs.Wrap(errs.Internal, err, "cardpsp: create charge")
	}

	amt, err := money.FromInt64(ch.Amount)
	if err != nil {
		return Charge{}, errs.Wrap(errs.Internal, err, "cardpsp: charge amount")
	}
	return Charge{ID: ch.ID, Amount: amt, Currency: string(ch.Currency), Status: string(ch.Status)}, nil
}

// ParseWebhook verifies the webhook signature and maps the event to our
// canonical Event, narrowed to the PaymentIntent event types the event
// engine acts on. Signature failures surface as a single Forbidden error
// kind, per spec.
func (c *RealClient) ParseWebhook(body []byte, signatureHeader string) (Event, error) {
	event, err := webhook.ConstructEvent(body, signatureHeader, c.webhookSecret)
	if err != nil {
		c.log.Warn("card PSP webhook signature verification failed", zap.Error(err))
		return Event{}, errs.Wrap(errs.Forbidden, err, "cardpsp: webhook signature verification failed")
	}

	out := Event{ID: event.ID, RawType: string(event.Type)}

	switch event.Type {
	case stripe.EventType(EventKindPaymentIntentAmountCapturableUpdated),
		stripe.EventType(EventKindPaymentIntentPaymentFailed),
		stripe.EventType(EventKindPaymentIntentSucceeded):

		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, errs.Wrap(errs.Internal, err, "cardpsp: unmarshal payment intent webhook data")
		}

		mapped, err := mapPaymentIntent(&pi)
		if err != nil {
			return out, err
		}

		out.Kind = EventKind(event.Type)
		out.PaymentIntentID = mapped.ID
		out.Amount = mapped.Amount
		out.AmountReceived = mapped.AmountReceived
		out.ChargeID = mapped.ChargeID

	default:
		c.log.Info("unhandled card PSP webhook event type, acknowledging", zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
		out.Kind = EventKindOther
	}

	return out, nil
}

func mapPaymentIntent(pi *stripe.PaymentIntent) (PaymentIntent, error) {
	amount, err := money.FromInt64(pi.Amount)
	if err != nil {
		return PaymentIntent{}, errs.Wrap(errs.Internal, err, "cardpsp: payment intent amount")
	}
	received, err := money.FromInt64(pi.AmountReceived)
	if err != nil {
		return PaymentIntent{}, errs.Wrap(errs.Internal, err, "cardpsp: payment intent amount_received")
	}

	var chargeID *string
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		id := pi.LatestCharge.ID
		chargeID = &id
	}

	return PaymentIntent{
		ID:             pi.ID,
		Amount:         amount,
		AmountReceived: received,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		ChargeID:       chargeID,
	}, nil
}

var _ Client = (*RealClient)(nil)
