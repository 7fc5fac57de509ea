package cryptopsp

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/pkg/errs"
)

func TestFakeClient_AccountLifecycle(t *testing.T) {
	c := NewFakeClient()
	ctx := context.Background()

	a, err := c.CreateAccount(ctx, "idem-1", "ETH", true)
	require.NoError(t, err)
	require.True(t, a.Pooled)

	got, err := c.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.WalletAddress, got.WalletAddress)

	all, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, c.DeleteAccount(ctx, a.ID))
	_, err = c.GetAccount(ctx, a.ID)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestFakeClient_GetRateDefaultsToOne(t *testing.T) {
	c := NewFakeClient()
	rate, err := c.GetRate(context.Background(), "ETH", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(1).Equal(rate.Rate))
}

func TestFakeClient_RefreshRateHonorsConfiguredOutcome(t *testing.T) {
	c := NewFakeClient()
	res, err := c.RefreshRate(context.Background(), "ETH:USDC")
	require.NoError(t, err)
	require.False(t, res.IsNewRate)

	c.RefreshIsNew = true
	c.RefreshedRate = decimal.NewFromFloat(1.05)
	res, err = c.RefreshRate(context.Background(), "ETH:USDC")
	require.NoError(t, err)
	require.True(t, res.IsNewRate)
	require.True(t, c.RefreshedRate.Equal(res.Rate))
}
