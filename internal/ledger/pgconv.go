package ledger

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/money"
)

// This file isolates the pgx/pgtype <-> domain-type conversions, the same
// boundary the teacher keeps at the bottom of its service files (see
// uuidToPgtype / timeToPgtype helpers in invoice_service.go), generalized to
// our big.Int-backed amounts and decimal.Decimal rates.

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgToUUID(p pgtype.UUID) uuid.UUID {
	return uuid.UUID(p.Bytes)
}

func uuidPtrToPg(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return uuidToPg(*id)
}

func pgToUUIDPtr(p pgtype.UUID) *uuid.UUID {
	if !p.Valid {
		return nil
	}
	id := uuid.UUID(p.Bytes)
	return &id
}

func timeToPg(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timePtrToPg(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return timeToPg(*t)
}

func pgToTimePtr(p pgtype.Timestamptz) *time.Time {
	if !p.Valid {
		return nil
	}
	t := p.Time
	return &t
}

// amountToNumeric stores a money.Amount (arbitrary-precision, unsigned
// integer) as an exact-scale NUMERIC.
func amountToNumeric(a money.Amount) pgtype.Numeric {
	bi, _ := new(big.Int).SetString(a.String(), 10)
	return pgtype.Numeric{Int: bi, Exp: 0, Valid: true}
}

func numericToAmount(n pgtype.Numeric) (money.Amount, error) {
	if !n.Valid || n.Int == nil {
		return money.Zero(), nil
	}
	// Normalize to Exp 0 (amounts are always stored as whole minor units).
	if n.Exp == 0 {
		return money.Parse(n.Int.String())
	}
	scaled := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		scaled.Mul(scaled, factor)
	} else {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		scaled.Div(scaled, factor)
	}
	return money.Parse(scaled.String())
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalPtrToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{Valid: false}
	}
	return decimalToNumeric(*d)
}

func numericToDecimalPtr(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := numericToDecimal(n)
	return &d
}

func textPtrToPg(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func pgToTextPtr(p pgtype.Text) *string {
	if !p.Valid {
		return nil
	}
	s := p.String
	return &s
}
