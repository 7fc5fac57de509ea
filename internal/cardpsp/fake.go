package cardpsp

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// FakeClient is an in-memory Client double for package-level tests. It
// never touches the network; webhook bodies are interpreted through
// NextEvent rather than actually HMAC-verified.
type FakeClient struct {
	mu sync.Mutex

	Intents map[string]PaymentIntent
	Charges map[string]Charge

	// NextEvent, if set, is returned verbatim (and cleared) by the next
	// call to ParseWebhook, regardless of body/signature contents.
	NextEvent *Event
	// VerifyFails, if true, makes ParseWebhook return a Forbidden error
	// instead of consulting NextEvent.
	VerifyFails bool

	CanceledIDs []string
}

// NewFakeClient builds an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Intents: make(map[string]PaymentIntent),
		Charges: make(map[string]Charge),
	}
}

func (c *FakeClient) CreatePaymentIntent(ctx context.Context, in NewPaymentIntent) (PaymentIntent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pi := PaymentIntent{
		ID:       "pi_fake_" + uuid.NewString(),
		Amount:   in.Amount,
		Currency: in.Currency,
		Status:   "requires_capture",
	}
	c.Intents[pi.ID] = pi
	return pi, nil
}

func (c *FakeClient) CancelPaymentIntent(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pi, ok := c.Intents[id]
	if !ok {
		return errs.NotFoundf("cardpsp: payment intent %s not found", id)
	}
	pi.Status = "canceled"
	c.Intents[id] = pi
	c.CanceledIDs = append(c.CanceledIDs, id)
	return nil
}

func (c *FakeClient) CreateCharge(ctx context.Context, in NewCharge, metadata map[string]string) (Charge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := Charge{
		ID:       "ch_fake_" + uuid.NewString(),
		Amount:   in.Amount,
		Currency: in.Currency,
		Status:   "succeeded",
	}
	c.Charges[ch.ID] = ch
	return ch, nil
}

func (c *FakeClient) ParseWebhook(body []byte, signatureHeader string) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.VerifyFails {
		return Event{}, errs.Forbiddenf("cardpsp: webhook signature verification failed")
	}
	if c.NextEvent == nil {
		return Event{Kind: EventKindOther, RawType: "unset"}, nil
	}
	ev := *c.NextEvent
	c.NextEvent = nil
	return ev, nil
}

// SetNextAmountCapturableUpdated queues a PaymentIntentAmountCapturableUpdated
// event for the next ParseWebhook call.
func (c *FakeClient) SetNextAmountCapturableUpdated(paymentIntentID string, amount, amountReceived money.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NextEvent = &Event{
		ID:              "evt_fake_" + uuid.NewString(),
		Kind:            EventKindPaymentIntentAmountCapturableUpdated,
		RawType:         string(EventKindPaymentIntentAmountCapturableUpdated),
		PaymentIntentID: paymentIntentID,
		Amount:          amount,
		AmountReceived:  amountReceived,
	}
}

// SetNextPaymentFailed queues a PaymentIntentPaymentFailed event for the
// next ParseWebhook call.
func (c *FakeClient) SetNextPaymentFailed(paymentIntentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NextEvent = &Event{
		ID:              "evt_fake_" + uuid.NewString(),
		Kind:            EventKindPaymentIntentPaymentFailed,
		RawType:         string(EventKindPaymentIntentPaymentFailed),
		PaymentIntentID: paymentIntentID,
	}
}

var _ Client = (*FakeClient)(nil)
