package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// FakeStore is an in-memory Store used by the invoice/eventqueue package
// tests, grounded on the teacher's in-memory fakes for its repository
// interfaces (see the fixture pattern in invoice_service_test.go). It is not
// safe to reuse across tests that assert on goroutine scheduling order.
type FakeStore struct {
	mu sync.Mutex

	invoices      map[uuid.UUID]*Invoice
	orders        map[uuid.UUID]*Order
	rates         map[uuid.UUID]*OrderExchangeRate
	accounts      map[uuid.UUID]*Account
	piLinks       map[uuid.UUID]*PaymentIntentLink
	intents       map[string]*PaymentIntent
	fees          map[uuid.UUID]*Fee
	events        map[uuid.UUID]*EventEntry
	captured      map[string]struct{} // key: accountID|transactionID
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		invoices: make(map[uuid.UUID]*Invoice),
		orders:   make(map[uuid.UUID]*Order),
		rates:    make(map[uuid.UUID]*OrderExchangeRate),
		accounts: make(map[uuid.UUID]*Account),
		piLinks:  make(map[uuid.UUID]*PaymentIntentLink),
		intents:  make(map[string]*PaymentIntent),
		fees:     make(map[uuid.UUID]*Fee),
		events:   make(map[uuid.UUID]*EventEntry),
		captured: make(map[string]struct{}),
	}
}

func cloneInvoice(i *Invoice) *Invoice {
	cp := *i
	return &cp
}

// --- Invoice ---

func (f *FakeStore) GetInvoice(_ context.Context, id uuid.UUID) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, errs.NotFoundf("invoice %s", id)
	}
	return cloneInvoice(inv), nil
}

func (f *FakeStore) GetInvoiceByAccountID(_ context.Context, accountID uuid.UUID) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.AccountID != nil && *inv.AccountID == accountID {
			return cloneInvoice(inv), nil
		}
	}
	return nil, errs.NotFoundf("invoice for account %s", accountID)
}

func (f *FakeStore) GetInvoiceByPaymentIntentID(_ context.Context, paymentIntentID string) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for invoiceID, link := range f.piLinks {
		if link.PaymentIntentID == paymentIntentID {
			inv, ok := f.invoices[invoiceID]
			if !ok {
				break
			}
			return cloneInvoice(inv), nil
		}
	}
	return nil, errs.NotFoundf("invoice for payment intent %s", paymentIntentID)
}

func (f *FakeStore) CreateInvoice(_ context.Context, inv *Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (f *FakeStore) SetInvoicePaid(_ context.Context, invoiceID uuid.UUID, upd PaidUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.IsPaid() {
		return false, nil
	}
	amt := upd.FinalAmountPaid
	cb := upd.FinalCashbackAmount
	paidAt := upd.PaidAt
	inv.FinalAmountPaid = &amt
	inv.FinalCashbackAmount = &cb
	inv.PaidAt = &paidAt
	return true, nil
}

func (f *FakeStore) DeleteInvoice(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.invoices, id)
	return nil
}

// --- Order ---

func (f *FakeStore) GetOrdersByInvoice(_ context.Context, invoiceID uuid.UUID) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.orders {
		if o.InvoiceID == invoiceID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *FakeStore) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, errs.NotFoundf("order %s", id)
	}
	cp := *o
	return &cp, nil
}

func (f *FakeStore) CreateOrder(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *FakeStore) DeleteOrdersByInvoice(_ context.Context, invoiceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.orders {
		if o.InvoiceID == invoiceID {
			delete(f.orders, id)
		}
	}
	return nil
}

// --- OrderExchangeRate ---

func (f *FakeStore) GetActiveRateForOrder(_ context.Context, orderID uuid.UUID) (*OrderExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rates {
		if r.OrderID == orderID && r.Status == RateActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errs.NotFoundf("active rate for order %s", orderID)
}

func (f *FakeStore) GetAllRatesForOrder(_ context.Context, orderID uuid.UUID) ([]OrderExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OrderExchangeRate
	for _, r := range f.rates {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *FakeStore) CreateRate(_ context.Context, r NewRate) (*OrderExchangeRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rates {
		if existing.OrderID == r.OrderID && existing.Status == RateActive {
			existing.Status = RateExpired
		}
	}
	out := &OrderExchangeRate{
		ID:         uuid.New(),
		OrderID:    r.OrderID,
		ExchangeID: r.ExchangeID,
		Rate:       r.Rate,
		Status:     RateActive,
		CreatedAt:  time.Now().UTC(),
	}
	f.rates[out.ID] = out
	cp := *out
	return &cp, nil
}

// --- Account ---

func (f *FakeStore) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, errs.NotFoundf("account %s", id)
	}
	cp := *a
	return &cp, nil
}

func (f *FakeStore) GetAccountByWalletAddress(_ context.Context, addr string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.WalletAddress == addr {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errs.NotFoundf("account with wallet %s", addr)
}

func (f *FakeStore) UpsertAccount(_ context.Context, a *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

// --- capture / idempotency ---

func (f *FakeStore) IncreaseAmountCaptured(_ context.Context, accountID uuid.UUID, transactionID string, delta money.Amount) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := accountID.String() + "|" + transactionID
	if _, seen := f.captured[key]; seen {
		return nil, errs.AlreadyAppliedErr()
	}
	f.captured[key] = struct{}{}

	for _, inv := range f.invoices {
		if inv.AccountID != nil && *inv.AccountID == accountID {
			inv.AmountCaptured = inv.AmountCaptured.Add(delta)
			return cloneInvoice(inv), nil
		}
	}
	return nil, errs.NotFoundf("invoice for account %s", accountID)
}

// --- PaymentIntent ---

func (f *FakeStore) GetPaymentIntentLinkByInvoice(_ context.Context, invoiceID uuid.UUID) (*PaymentIntentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.piLinks[invoiceID]
	if !ok {
		return nil, errs.NotFoundf("payment intent link for invoice %s", invoiceID)
	}
	cp := *l
	return &cp, nil
}

func (f *FakeStore) GetPaymentIntent(_ context.Context, id string) (*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return nil, errs.NotFoundf("payment intent %s", id)
	}
	cp := *pi
	return &cp, nil
}

func (f *FakeStore) CreatePaymentIntent(_ context.Context, pi *PaymentIntent, invoiceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *pi
	f.intents[pi.ID] = &cp
	f.piLinks[invoiceID] = &PaymentIntentLink{InvoiceID: invoiceID, PaymentIntentID: pi.ID}
	return nil
}

func (f *FakeStore) UpdatePaymentIntentStatus(_ context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pi, ok := f.intents[id]; ok {
		pi.Status = status
	}
	return nil
}

func (f *FakeStore) DeletePaymentIntentLink(_ context.Context, invoiceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.piLinks, invoiceID)
	return nil
}

func (f *FakeStore) DeletePaymentIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.intents, id)
	return nil
}

// --- Fee ---

func (f *FakeStore) CreateFee(_ context.Context, fee *Fee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *fee
	f.fees[fee.ID] = &cp
	return nil
}

func (f *FakeStore) GetFeesByOrder(_ context.Context, orderID uuid.UUID) ([]Fee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Fee
	for _, fee := range f.fees {
		if fee.OrderID == orderID {
			out = append(out, *fee)
		}
	}
	return out, nil
}

// --- Event queue ---

func (f *FakeStore) EnqueueEvent(_ context.Context, payload []byte, scheduledFor *time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.events[id] = &EventEntry{
		ID:           id,
		Payload:      append([]byte(nil), payload...),
		Status:       EventPending,
		ScheduledFor: scheduledFor,
		CreatedAt:    time.Now().UTC(),
	}
	return id, nil
}

func (f *FakeStore) ResetStuckEvents(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Status == EventInProgress && e.LeaseUntil != nil && e.LeaseUntil.Before(now) {
			e.Status = EventPending
			e.LeaseUntil = nil
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) DequeuePendingEvent(_ context.Context, now time.Time, leaseFor time.Duration) (*EventEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *EventEntry
	for _, e := range f.events {
		if e.Status != EventPending {
			continue
		}
		if e.ScheduledFor != nil && e.ScheduledFor.After(now) {
			continue
		}
		if best == nil || e.CreatedAt.Before(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	leaseUntil := now.Add(leaseFor)
	best.Status = EventInProgress
	best.LeaseUntil = &leaseUntil
	best.Attempts++
	cp := *best
	return &cp, nil
}

func (f *FakeStore) CompleteEvent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		e.Status = EventCompleted
		e.LeaseUntil = nil
	}
	return nil
}

func (f *FakeStore) FailEvent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		e.Status = EventFailed
		e.LeaseUntil = nil
	}
	return nil
}

// WithTx runs fn against the same FakeStore; the in-memory fake has no
// rollback semantics, matching how the teacher's in-memory repository fakes
// treat WithTx as a pass-through in unit tests.
func (f *FakeStore) WithTx(_ context.Context, fn func(tx Store) error) error {
	return fn(f)
}

var _ Store = (*FakeStore)(nil)
