package cryptopsp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/pkg/errs"
)

// FakeClient is an in-memory Client for invoice/event-queue package tests,
// grounded on the teacher's in-memory-fixture testing style (no mocking
// framework, hand-rolled structs holding maps).
type FakeClient struct {
	mu sync.Mutex

	accounts map[string]Account
	rates    map[string]decimal.Decimal // exchangeID -> rate
	// NextRate is returned by GetRate for every (from, to) pair.
	NextRate decimal.Decimal
	// RefreshIsNew controls whether RefreshRate reports a changed rate.
	RefreshIsNew bool
	// RefreshedRate is returned by RefreshRate when RefreshIsNew is true.
	RefreshedRate decimal.Decimal
}

// NewFakeClient returns an empty FakeClient with a 1:1 default rate.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		accounts: make(map[string]Account),
		rates:    make(map[string]decimal.Decimal),
		NextRate: decimal.NewFromInt(1),
	}
}

func (f *FakeClient) GetRate(_ context.Context, from, to string, _ decimal.Decimal) (*Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := from + ":" + to
	return &Rate{ExchangeID: id, Rate: f.NextRate}, nil
}

func (f *FakeClient) RefreshRate(_ context.Context, exchangeID string) (*RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.RefreshIsNew {
		return &RefreshResult{Rate: f.rates[exchangeID], IsNewRate: false}, nil
	}
	f.rates[exchangeID] = f.RefreshedRate
	return &RefreshResult{Rate: f.RefreshedRate, IsNewRate: true}, nil
}

func (f *FakeClient) CreateAccount(_ context.Context, _ string, currency string, pooled bool) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := Account{ID: uuid.New().String(), Currency: currency, WalletAddress: fmt.Sprintf("0xfake%s", uuid.NewString()[:8]), Pooled: pooled}
	f.accounts[a.ID] = a
	return &a, nil
}

func (f *FakeClient) ListAccounts(_ context.Context) ([]Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (f *FakeClient) GetAccount(_ context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, errs.NotFoundf("crypto account %s", id)
	}
	return &a, nil
}

func (f *FakeClient) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

var _ Client = (*FakeClient)(nil)
