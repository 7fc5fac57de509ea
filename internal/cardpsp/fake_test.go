package cardpsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/money"
)

func TestFakeClient_CreateAndCancelPaymentIntent(t *testing.T) {
	c := NewFakeClient()
	ctx := context.Background()

	pi, err := c.CreatePaymentIntent(ctx, NewPaymentIntent{
		Amount:   money.MustFromInt64(1000),
		Currency: "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, "EUR", pi.Currency)
	require.Equal(t, "requires_capture", pi.Status)

	require.NoError(t, c.CancelPaymentIntent(ctx, pi.ID))
	require.Contains(t, c.CanceledIDs, pi.ID)

	err = c.CancelPaymentIntent(ctx, "nonexistent")
	require.Error(t, err)
}

func TestFakeClient_ParseWebhookDefaultsToOther(t *testing.T) {
	c := NewFakeClient()
	ev, err := c.ParseWebhook([]byte(`{}`), "sig")
	require.NoError(t, err)
	require.Equal(t, EventKindOther, ev.Kind)
}

func TestFakeClient_ParseWebhookReturnsQueuedAmountCapturableUpdated(t *testing.T) {
	c := NewFakeClient()
	c.SetNextAmountCapturableUpdated("pi_1", money.MustFromInt64(1000), money.MustFromInt64(1000))

	ev, err := c.ParseWebhook([]byte(`{}`), "sig")
	require.NoError(t, err)
	require.Equal(t, EventKindPaymentIntentAmountCapturableUpdated, ev.Kind)
	require.Equal(t, "pi_1", ev.PaymentIntentID)

	// queue is consumed; next call falls back to "other"
	ev, err = c.ParseWebhook([]byte(`{}`), "sig")
	require.NoError(t, err)
	require.Equal(t, EventKindOther, ev.Kind)
}

func TestFakeClient_ParseWebhookHonorsVerifyFails(t *testing.T) {
	c := NewFakeClient()
	c.VerifyFails = true

	_, err := c.ParseWebhook([]byte(`{}`), "bad-sig")
	require.Error(t, err)
}

func TestFakeClient_CreateCharge(t *testing.T) {
	c := NewFakeClient()
	ch, err := c.CreateCharge(context.Background(), NewCharge{
		Amount:   money.MustFromInt64(500),
		Currency: "EUR",
		Source:   "tok_visa",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "succeeded", ch.Status)
}
