package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// newTestPool connects to TEST_DATABASE_URL, applies migrations, and
// truncates every ledger table, mirroring libs/go/testutil.NewTestDB's
// skip-if-unset convention for tests that need a real Postgres instance.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping ledger Postgres test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, Migrate(ctx, pool))

	for _, table := range []string{
		"captured_transactions", "event_store", "fees", "payment_intent_links",
		"payment_intents", "order_exchange_rates", "orders", "invoices", "accounts",
	} {
		_, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE")
		require.NoError(t, err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore_InvoiceLifecycle(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	inv := &Invoice{
		ID:             uuid.New(),
		BuyerUserID:    uuid.New(),
		BuyerCurrency:  "USD",
		AmountCaptured: money.Zero(),
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.CreateInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.BuyerCurrency, got.BuyerCurrency)
	require.False(t, got.IsPaid())

	upd := PaidUpdate{
		FinalAmountPaid:     decimal.NewFromInt(100),
		FinalCashbackAmount: decimal.NewFromInt(5),
		PaidAt:              time.Now().UTC().Truncate(time.Microsecond),
	}
	ok, err := store.SetInvoicePaid(ctx, inv.ID, upd)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, got.IsPaid())
	require.True(t, upd.FinalAmountPaid.Equal(*got.FinalAmountPaid))

	// Setting paid again is a no-op, it must not overwrite the first values,
	// and it must report that it didn't do so.
	upd2 := upd
	upd2.FinalAmountPaid = decimal.NewFromInt(999)
	ok, err = store.SetInvoicePaid(ctx, inv.ID, upd2)
	require.NoError(t, err)
	require.False(t, ok)
	got, err = store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, upd.FinalAmountPaid.Equal(*got.FinalAmountPaid))

	require.NoError(t, store.DeleteInvoice(ctx, inv.ID))
	_, err = store.GetInvoice(ctx, inv.ID)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestPostgresStore_IncreaseAmountCapturedIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	account := &Account{ID: uuid.New(), Currency: "ETH", WalletAddress: "0xabc", IsPooled: true}
	require.NoError(t, store.UpsertAccount(ctx, account))

	inv := &Invoice{
		ID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "ETH",
		AmountCaptured: money.Zero(), AccountID: &account.ID, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateInvoice(ctx, inv))

	delta := money.MustFromInt64(1000)
	updated, err := store.IncreaseAmountCaptured(ctx, account.ID, "tx-1", delta)
	require.NoError(t, err)
	require.Equal(t, 0, updated.AmountCaptured.Cmp(delta))

	// Replaying the same transaction id must be rejected, not double-applied.
	_, err = store.IncreaseAmountCaptured(ctx, account.ID, "tx-1", delta)
	require.Equal(t, errs.AlreadyApplied, errs.KindOf(err))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.AmountCaptured.Cmp(delta))
}

func TestPostgresStore_RateVersioning(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	inv := &Invoice{ID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "USD", AmountCaptured: money.Zero(), CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateInvoice(ctx, inv))
	order := &Order{ID: uuid.New(), InvoiceID: inv.ID, SellerCurrency: "EUR", TotalAmount: money.MustFromInt64(5000), StoreID: uuid.New(), State: OrderInitial}
	require.NoError(t, store.CreateOrder(ctx, order))

	r1, err := store.CreateRate(ctx, NewRate{OrderID: order.ID, Rate: decimal.NewFromFloat(1.1)})
	require.NoError(t, err)
	require.Equal(t, RateActive, r1.Status)

	r2, err := store.CreateRate(ctx, NewRate{OrderID: order.ID, Rate: decimal.NewFromFloat(1.2)})
	require.NoError(t, err)
	require.Equal(t, RateActive, r2.Status)

	active, err := store.GetActiveRateForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, r2.ID, active.ID)

	all, err := store.GetAllRatesForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestPostgresStore_EventQueueDequeue(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	id, err := store.EnqueueEvent(ctx, []byte(`{"kind":"test"}`), nil)
	require.NoError(t, err)

	entry, err := store.DequeuePendingEvent(ctx, time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, id, entry.ID)
	require.Equal(t, EventInProgress, entry.Status)

	// Already leased, a second dequeue attempt must find nothing.
	none, err := store.DequeuePendingEvent(ctx, time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, store.CompleteEvent(ctx, id))
}
