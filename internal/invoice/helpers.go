package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// createCardPaymentIntent implements 4.E.3's params computation: sum each
// priced order's buyer-super-unit contribution (total_amount_super /
// exchange_rate, which is always 1 here since the card flow only ever
// prices same-currency fiat orders), then convert to the buyer currency's
// minor units. The conversion must be exact — any remainder means the
// rates rounded somewhere they shouldn't have.
func (s *Service) createCardPaymentIntent(ctx context.Context, priced []pricedOrder, buyerCurrency string) (*ledger.PaymentIntent, error) {
	buyerCcy, err := money.Lookup(buyerCurrency)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "invoice: lookup buyer currency")
	}

	total := decimal.Zero
	for _, p := range priced {
		super := p.order.TotalAmount.ToSuper(buyerCcy.DecimalPlaces)
		if !p.rate.Equal(decimal.NewFromInt(1)) {
			super = super.DivRound(p.rate, buyerCcy.DecimalPlaces+8)
		}
		total = total.Add(super)
	}

	amount, err := money.FromSuper(total, buyerCcy.DecimalPlaces, true)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "invoice: exchanged amount does not convert exactly to minor units")
	}

	pi, err := s.cardPSP.CreatePaymentIntent(ctx, cardpsp.NewPaymentIntent{
		Amount:      amount,
		Currency:    buyerCurrency,
		Description: "invoice payment",
	})
	if err != nil {
		return nil, err
	}

	return &ledger.PaymentIntent{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       pi.Currency,
		Status:         pi.Status,
		ChargeID:       pi.ChargeID,
	}, nil
}

// getOrCreateFreePooledAccount implements the account-allocation step the
// crypto PSP client has no single call for: list the PSP's pooled accounts
// for currency, sync each into the ledger, and hand back the first one with
// no invoice currently assigned (or whose assigned invoice already paid).
// Only when none are free, and the pool hasn't hit its configured cap, does
// it mint a new pooled account.
func (s *Service) getOrCreateFreePooledAccount(ctx context.Context, currency string) (uuid.UUID, error) {
	accounts, err := s.cryptoPSP.ListAccounts(ctx)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.Internal, err, "invoice: list pooled accounts")
	}

	var sameCurrency []cryptopsp.Account
	for _, a := range accounts {
		if a.Pooled && a.Currency == currency {
			sameCurrency = append(sameCurrency, a)
		}
	}

	for _, a := range sameCurrency {
		id, free, err := s.syncAccountAndCheckFree(ctx, a)
		if err != nil {
			return uuid.Nil, err
		}
		if free {
			return id, nil
		}
	}

	if len(sameCurrency) >= s.maxAccounts {
		return uuid.Nil, errs.Internalf("invoice: pooled account pool exhausted for %s", currency)
	}

	created, err := s.cryptoPSP.CreateAccount(ctx, uuid.NewString(), currency, true)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.Internal, err, "invoice: create pooled account")
	}

	return s.upsertAccount(ctx, *created)
}

// syncAccountAndCheckFree mirrors the PSP's view of one account into the
// ledger and reports whether it currently has no unpaid invoice assigned.
func (s *Service) syncAccountAndCheckFree(ctx context.Context, a cryptopsp.Account) (uuid.UUID, bool, error) {
	id, err := s.upsertAccount(ctx, a)
	if err != nil {
		return uuid.Nil, false, err
	}

	inv, err := s.store.GetInvoiceByAccountID(ctx, id)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return id, true, nil
		}
		return uuid.Nil, false, errs.Wrap(errs.Internal, err, "invoice: lookup account's current invoice")
	}
	return id, inv.IsPaid(), nil
}

// upsertAccount reconciles a PSP account record into the ledger's Account
// table, keyed by wallet address since that's the one identifier both
// sides agree on.
func (s *Service) upsertAccount(ctx context.Context, a cryptopsp.Account) (uuid.UUID, error) {
	id := uuid.New()
	existing, err := s.store.GetAccountByWalletAddress(ctx, a.WalletAddress)
	switch {
	case err == nil:
		id = existing.ID
	case errs.Is(err, errs.NotFound):
		// fresh account, id stays the newly minted uuid
	default:
		return uuid.Nil, errs.Wrap(errs.Internal, err, "invoice: lookup account by wallet address")
	}

	account := ledger.Account{
		ID:            id,
		Currency:      a.Currency,
		WalletAddress: a.WalletAddress,
		IsPooled:      a.Pooled,
	}
	if err := s.store.UpsertAccount(ctx, &account); err != nil {
		return uuid.Nil, errs.Wrap(errs.Internal, err, "invoice: upsert account")
	}
	return account.ID, nil
}
