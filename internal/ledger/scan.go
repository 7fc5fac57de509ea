package ledger

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// letting the scan* helpers below serve both single-row and multi-row reads.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoiceRow(row rowScanner) (*Invoice, error) {
	var (
		id, buyerUserID, accountID             pgtype.UUID
		buyerCurrency                          string
		amountCaptured                         pgtype.Numeric
		finalAmountPaid, finalCashbackAmount   pgtype.Numeric
		paidAt                                 pgtype.Timestamptz
		createdAt                              pgtype.Timestamptz
	)
	if err := row.Scan(&id, &buyerUserID, &buyerCurrency, &amountCaptured, &accountID,
		&finalAmountPaid, &finalCashbackAmount, &paidAt, &createdAt); err != nil {
		return nil, err
	}
	captured, err := numericToAmount(amountCaptured)
	if err != nil {
		return nil, err
	}
	inv := &Invoice{
		ID:                  pgToUUID(id),
		BuyerUserID:         pgToUUID(buyerUserID),
		BuyerCurrency:       buyerCurrency,
		AmountCaptured:      captured,
		AccountID:           pgToUUIDPtr(accountID),
		FinalAmountPaid:     numericToDecimalPtr(finalAmountPaid),
		FinalCashbackAmount: numericToDecimalPtr(finalCashbackAmount),
		PaidAt:              pgToTimePtr(paidAt),
	}
	if t := pgToTimePtr(createdAt); t != nil {
		inv.CreatedAt = *t
	}
	return inv, nil
}

func scanOrderRow(row rowScanner) (*Order, error) {
	var (
		id, invoiceID, storeID pgtype.UUID
		sellerCurrency, state  string
		totalAmount            pgtype.Numeric
		cashbackAmount         pgtype.Numeric
		stripeFee              pgtype.Numeric
	)
	if err := row.Scan(&id, &invoiceID, &sellerCurrency, &totalAmount, &cashbackAmount, &storeID, &state, &stripeFee); err != nil {
		return nil, err
	}
	total, err := numericToAmount(totalAmount)
	if err != nil {
		return nil, err
	}
	o := &Order{
		ID:             pgToUUID(id),
		InvoiceID:      pgToUUID(invoiceID),
		SellerCurrency: sellerCurrency,
		TotalAmount:    total,
		CashbackAmount: numericToDecimal(cashbackAmount),
		StoreID:        pgToUUID(storeID),
		State:          OrderState(state),
	}
	if stripeFee.Valid {
		fee, err := numericToAmount(stripeFee)
		if err != nil {
			return nil, err
		}
		o.StripeFee = &fee
	}
	return o, nil
}

func scanRateRow(row rowScanner) (*OrderExchangeRate, error) {
	var (
		id, orderID pgtype.UUID
		exchangeID  pgtype.Text
		rate        pgtype.Numeric
		status      string
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &orderID, &exchangeID, &rate, &status, &createdAt); err != nil {
		return nil, err
	}
	r := &OrderExchangeRate{
		ID:         pgToUUID(id),
		OrderID:    pgToUUID(orderID),
		ExchangeID: pgToTextPtr(exchangeID),
		Rate:       numericToDecimal(rate),
		Status:     RateStatus(status),
	}
	if t := pgToTimePtr(createdAt); t != nil {
		r.CreatedAt = *t
	}
	return r, nil
}

func scanRateRowScanner(row rowScanner) (*OrderExchangeRate, error) {
	return scanRateRow(row)
}

func scanAccountRow(row rowScanner) (*Account, error) {
	var (
		id                     pgtype.UUID
		currency, walletAddr   string
		isPooled               bool
	)
	if err := row.Scan(&id, &currency, &walletAddr, &isPooled); err != nil {
		return nil, err
	}
	return &Account{ID: pgToUUID(id), Currency: currency, WalletAddress: walletAddr, IsPooled: isPooled}, nil
}

func scanPaymentIntentRow(row rowScanner) (*PaymentIntent, error) {
	var (
		id, currency, status string
		amount, received     pgtype.Numeric
		chargeID             pgtype.Text
	)
	if err := row.Scan(&id, &amount, &received, &currency, &status, &chargeID); err != nil {
		return nil, err
	}
	amt, err := numericToAmount(amount)
	if err != nil {
		return nil, err
	}
	rec, err := numericToAmount(received)
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{
		ID: id, Amount: amt, AmountReceived: rec, Currency: currency, Status: status,
		ChargeID: pgToTextPtr(chargeID),
	}, nil
}

func scanFeeRowScanner(row rowScanner) (*Fee, error) {
	var (
		id, orderID                 pgtype.UUID
		currency, status            string
		amount                      pgtype.Numeric
		chargeID, cryptoCurrency    pgtype.Text
		cryptoAmount                pgtype.Numeric
	)
	if err := row.Scan(&id, &orderID, &currency, &amount, &status, &chargeID, &cryptoCurrency, &cryptoAmount); err != nil {
		return nil, err
	}
	amt, err := numericToAmount(amount)
	if err != nil {
		return nil, err
	}
	f := &Fee{
		ID: pgToUUID(id), OrderID: pgToUUID(orderID), Currency: currency, Amount: amt,
		Status: FeeStatus(status), ChargeID: pgToTextPtr(chargeID), CryptoCurrency: pgToTextPtr(cryptoCurrency),
	}
	if cryptoAmount.Valid {
		ca, err := numericToAmount(cryptoAmount)
		if err != nil {
			return nil, err
		}
		f.CryptoAmount = &ca
	}
	return f, nil
}

func scanEventRow(row rowScanner) (*EventEntry, error) {
	var (
		id           pgtype.UUID
		payload      []byte
		status       string
		scheduledFor pgtype.Timestamptz
		attempts     int32
		leaseUntil   pgtype.Timestamptz
		createdAt    pgtype.Timestamptz
	)
	if err := row.Scan(&id, &payload, &status, &scheduledFor, &attempts, &leaseUntil, &createdAt); err != nil {
		return nil, err
	}
	e := &EventEntry{
		ID: pgToUUID(id), Payload: payload, Status: EventStatus(status),
		ScheduledFor: pgToTimePtr(scheduledFor), Attempts: int(attempts), LeaseUntil: pgToTimePtr(leaseUntil),
	}
	if t := pgToTimePtr(createdAt); t != nil {
		e.CreatedAt = *t
	}
	return e, nil
}
