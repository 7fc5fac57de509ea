package webhookingress

import (
	"github.com/google/uuid"

	"github.com/cyphera/paymentd/internal/invoice"
	"github.com/cyphera/paymentd/pkg/errs"
)

// parseCryptoCallback converts the wire request into the invoice service's
// input shape, parsing the optional account id if present.
func parseCryptoCallback(req cryptoCallbackRequest) (invoice.CryptoCallback, error) {
	cb := invoice.CryptoCallback{
		TransactionID:  req.TransactionID,
		AmountCaptured: req.AmountCaptured,
		Address:        req.Address,
		Currency:       req.Currency,
	}
	if req.AccountID != nil && *req.AccountID != "" {
		id, err := uuid.Parse(*req.AccountID)
		if err != nil {
			return invoice.CryptoCallback{}, errs.Wrap(errs.Validation, err, "webhookingress: parse account id")
		}
		cb.AccountID = &id
	}
	return cb, nil
}
