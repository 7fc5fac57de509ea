package invoice

import (
	"context"

	"github.com/google/uuid"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// CryptoCallback is the parsed body of an inbound crypto-PSP webhook, per
// 4.E.4's input shape. AccountID is optional on the wire; when absent the
// handler resolves it by wallet address.
type CryptoCallback struct {
	TransactionID  string
	AccountID      *uuid.UUID
	AmountCaptured string
	Address        string
	Currency       string
}

// HandleCryptoCallback implements 4.E.4. Signature verification happens one
// layer up, in internal/cryptopsp's Signer, before this is called — this
// method starts from step 2 (account resolution). Unknown accounts and
// invoices with no linked account are dropped silently (NotFound), matching
// the "2xx regardless" ingress contract.
func (s *Service) HandleCryptoCallback(ctx context.Context, cb CryptoCallback) error {
	accountID, err := s.resolveAccountID(ctx, cb)
	if err != nil {
		return err
	}

	amount, err := money.Parse(cb.AmountCaptured)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "invoice: parse amount_captured")
	}

	inv, err := s.store.GetInvoiceByAccountID(ctx, accountID)
	if err != nil {
		return err // NotFound propagates; caller treats it as a silent drop
	}

	updated, err := s.store.IncreaseAmountCaptured(ctx, accountID, cb.TransactionID, amount)
	if err != nil {
		if errs.Is(err, errs.AlreadyApplied) {
			updated, err = s.store.GetInvoice(ctx, inv.ID)
			if err != nil {
				return err
			}
		} else {
			return err
		}
	}

	if updated.IsPaid() {
		return nil
	}

	_, err = s.RecalculateInvoice(ctx, updated.ID)
	return err
}

// resolveAccountID implements 4.E.4 step 2: prefer the callback's own
// account_id, falling back to a wallet-address lookup.
func (s *Service) resolveAccountID(ctx context.Context, cb CryptoCallback) (uuid.UUID, error) {
	if cb.AccountID != nil {
		return *cb.AccountID, nil
	}
	acc, err := s.store.GetAccountByWalletAddress(ctx, cb.Address)
	if err != nil {
		return uuid.Nil, err // NotFound propagates, caller drops silently
	}
	return acc.ID, nil
}
