package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
)

func newTestService(t *testing.T) (*Service, *ledger.FakeStore, *cryptopsp.FakeClient, *cardpsp.FakeClient) {
	t.Helper()
	store := ledger.NewFakeStore()
	cryptoPSP := cryptopsp.NewFakeClient()
	cardPSP := cardpsp.NewFakeClient()
	svc := NewService(store, cryptoPSP, cardPSP, zap.NewNop(), time.Hour, 30*time.Minute, 2.5, 3)
	return svc, store, cryptoPSP, cardPSP
}

func TestCreateInvoice_FiatFlow(t *testing.T) {
	svc, store, _, cardPSP := newTestService(t)
	ctx := context.Background()

	total := money.MustFromInt64(10000) // $100.00
	in := CreateInvoiceInput{
		SagaID:        uuid.New(),
		BuyerUserID:   uuid.New(),
		BuyerCurrency: "USD",
		Orders: []NewOrderInput{
			{
				OrderID:        uuid.New(),
				StoreID:        uuid.New(),
				SellerCurrency: "USD",
				SellerTotal:    total,
			},
		},
	}

	dump, err := svc.CreateInvoice(ctx, in)
	require.NoError(t, err)
	require.Len(t, dump.Orders, 1)
	require.False(t, dump.HasMissingRates)

	link, err := store.GetPaymentIntentLinkByInvoice(ctx, in.SagaID)
	require.NoError(t, err)
	require.Len(t, cardPSP.Intents, 1)
	_, ok := cardPSP.Intents[link.PaymentIntentID]
	require.True(t, ok)

	inv, err := store.GetInvoice(ctx, in.SagaID)
	require.NoError(t, err)
	require.Nil(t, inv.AccountID)
}

func TestCreateInvoice_FiatCurrencyMismatchRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	in := CreateInvoiceInput{
		SagaID:        uuid.New(),
		BuyerUserID:   uuid.New(),
		BuyerCurrency: "USD",
		Orders: []NewOrderInput{
			{
				OrderID:        uuid.New(),
				StoreID:        uuid.New(),
				SellerCurrency: "EUR",
				SellerTotal:    money.MustFromInt64(1000),
			},
		},
	}

	_, err := svc.CreateInvoice(ctx, in)
	require.Error(t, err)
}

func TestCreateInvoice_CryptoFlowAssignsPooledAccount(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	in := CreateInvoiceInput{
		SagaID:        uuid.New(),
		BuyerUserID:   uuid.New(),
		BuyerCurrency: "USDC",
		Orders: []NewOrderInput{
			{
				OrderID:        uuid.New(),
				StoreID:        uuid.New(),
				SellerCurrency: "USDC",
				SellerTotal:    money.MustFromInt64(5_000_000),
			},
		},
	}

	dump, err := svc.CreateInvoice(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, dump.WalletAddress)

	inv, err := store.GetInvoice(ctx, in.SagaID)
	require.NoError(t, err)
	require.NotNil(t, inv.AccountID)

	_, err = store.GetPaymentIntentLinkByInvoice(ctx, in.SagaID)
	require.Error(t, err, "crypto flow should not create a payment intent link")
}

func TestCreateInvoice_CryptoFlowReusesFreeAccount(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	order := func() NewOrderInput {
		return NewOrderInput{
			OrderID:        uuid.New(),
			StoreID:        uuid.New(),
			SellerCurrency: "USDC",
			SellerTotal:    money.MustFromInt64(1_000_000),
		}
	}

	in1 := CreateInvoiceInput{SagaID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "USDC", Orders: []NewOrderInput{order()}}
	dump1, err := svc.CreateInvoice(ctx, in1)
	require.NoError(t, err)

	err = svc.DeleteInvoice(ctx, in1.SagaID)
	require.NoError(t, err)

	in2 := CreateInvoiceInput{SagaID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "USDC", Orders: []NewOrderInput{order()}}
	dump2, err := svc.CreateInvoice(ctx, in2)
	require.NoError(t, err)

	require.Equal(t, *dump1.WalletAddress, *dump2.WalletAddress)

	_, err = store.GetInvoice(ctx, in1.SagaID)
	require.Error(t, err)
}

func TestCreateInvoice_CryptoFlowExhaustsPool(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	svc.maxAccounts = 1

	order := func() NewOrderInput {
		return NewOrderInput{
			OrderID:        uuid.New(),
			StoreID:        uuid.New(),
			SellerCurrency: "USDC",
			SellerTotal:    money.MustFromInt64(1_000_000),
		}
	}

	in1 := CreateInvoiceInput{SagaID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "USDC", Orders: []NewOrderInput{order()}}
	_, err := svc.CreateInvoice(ctx, in1)
	require.NoError(t, err)

	in2 := CreateInvoiceInput{SagaID: uuid.New(), BuyerUserID: uuid.New(), BuyerCurrency: "USDC", Orders: []NewOrderInput{order()}}
	_, err = svc.CreateInvoice(ctx, in2)
	require.Error(t, err)
}
