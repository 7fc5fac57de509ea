package eventqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/ledger"
)

// fakeDispatcher records which handler was called and lets tests force an
// error return for the failure-path test.
type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (d *fakeDispatcher) record(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
	if d.failOn == name {
		return errTestDispatch
	}
	return nil
}

func (d *fakeDispatcher) HandleInvoicePaid(_ context.Context, _ uuid.UUID) error { return d.record("invoice_paid") }
func (d *fakeDispatcher) HandlePaymentIntentPaymentFailed(_ context.Context, _ string) error {
	return d.record("payment_intent_payment_failed")
}
func (d *fakeDispatcher) HandlePaymentIntentAmountCapturableUpdated(_ context.Context, _ string) error {
	return d.record("payment_intent_amount_capturable_updated")
}
func (d *fakeDispatcher) HandlePaymentIntentSucceeded(_ context.Context, _ string) error {
	return d.record("payment_intent_succeeded")
}
func (d *fakeDispatcher) HandlePaymentIntentCapture(_ context.Context, _ uuid.UUID) error {
	return d.record("payment_intent_capture")
}
func (d *fakeDispatcher) HandlePaymentExpired(_ context.Context, _ uuid.UUID) error {
	return d.record("payment_expired")
}
func (d *fakeDispatcher) HandlePayoutInitiated(_ context.Context, _ string) error {
	return d.record("payout_initiated")
}

var _ Dispatcher = (*fakeDispatcher)(nil)

var errTestDispatch = &testDispatchError{}

type testDispatchError struct{}

func (*testDispatchError) Error() string { return "dispatch failed" }

func TestTick_EmptyQueueIsNoOp(t *testing.T) {
	store := ledger.NewFakeStore()
	d := &fakeDispatcher{}
	e := NewEngine(store, d, zap.NewNop(), time.Second, time.Minute)

	e.Tick()

	require.Empty(t, d.calls)
}

func TestTick_DispatchesAndCompletesInvoicePaid(t *testing.T) {
	store := ledger.NewFakeStore()
	d := &fakeDispatcher{}
	e := NewEngine(store, d, zap.NewNop(), time.Second, time.Minute)

	invoiceID := uuid.New()
	payload, err := EncodeInvoicePaid(invoiceID)
	require.NoError(t, err)
	id, err := store.EnqueueEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	e.Tick()

	require.Equal(t, []string{"invoice_paid"}, d.calls)

	entry, err := store.DequeuePendingEvent(context.Background(), time.Now(), time.Minute)
	require.NoError(t, err)
	require.Nil(t, entry, "completed event must not be re-dequeued")
	_ = id
}

func TestTick_FailedDispatchMarksEventFailed(t *testing.T) {
	store := ledger.NewFakeStore()
	d := &fakeDispatcher{failOn: "payment_expired"}
	e := NewEngine(store, d, zap.NewNop(), time.Second, time.Minute)

	payload, err := EncodePaymentExpired(uuid.New())
	require.NoError(t, err)
	_, err = store.EnqueueEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	e.Tick()

	require.Equal(t, []string{"payment_expired"}, d.calls)

	// A failed event is terminal: once its lease would have run out it is
	// not reset to pending, so it is never handed out again.
	later := time.Now().Add(time.Hour)
	n, err := store.ResetStuckEvents(context.Background(), later)
	require.NoError(t, err)
	require.Zero(t, n)
	entry, err := store.DequeuePendingEvent(context.Background(), later, time.Minute)
	require.NoError(t, err)
	require.Nil(t, entry, "failed event must not be re-dequeued")
}

func TestTick_RespectsScheduledFor(t *testing.T) {
	store := ledger.NewFakeStore()
	d := &fakeDispatcher{}
	e := NewEngine(store, d, zap.NewNop(), time.Second, time.Minute)

	future := time.Now().Add(time.Hour)
	payload, err := EncodePayoutInitiated("payout-1")
	require.NoError(t, err)
	_, err = store.EnqueueEvent(context.Background(), payload, &future)
	require.NoError(t, err)

	e.Tick()

	require.Empty(t, d.calls, "event scheduled in the future must not dispatch yet")
}

func TestStartStop(t *testing.T) {
	store := ledger.NewFakeStore()
	d := &fakeDispatcher{}
	e := NewEngine(store, d, zap.NewNop(), 10*time.Millisecond, time.Minute)

	payload, err := EncodeInvoicePaid(uuid.New())
	require.NoError(t, err)
	_, err = store.EnqueueEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	e.Start()
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.calls) == 1
	}, time.Second, 5*time.Millisecond)
	e.Stop()
}
