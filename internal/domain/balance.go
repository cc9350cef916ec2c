package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are NUMERIC(10,2): two fractional digits, eight integral.
const (
	amountScale     = 2
	amountMaxDigits = 10
)

var amountLimit = decimal.New(1, amountMaxDigits-amountScale)

// TotalBalance sums the amounts of txs. Withdrawals are not negated: the
// stored amount carries its own sign.
func TotalBalance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// ParseAmount parses a decimal string and enforces the storage precision.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Validationf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Validationf("%q is not a valid amount", s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount rejects values that do not fit NUMERIC(10,2).
// The exponent is bounded first: rounding or comparing a decimal rescales it
// by a power of ten proportional to the exponent.
func ValidateAmount(d decimal.Decimal) error {
	if exp := d.Exponent(); exp < -(amountScale+amountMaxDigits) || exp > amountMaxDigits {
		return Validationf("amount is out of range")
	}
	if !d.Equal(d.Round(amountScale)) {
		return Validationf("amount must have at most 2 decimal places")
	}
	if d.Abs().GreaterThanOrEqual(amountLimit) {
		return Validationf("amount must have at most 10 digits")
	}
	return nil
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountScale)
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, Validationf("%q is not a valid date, expected YYYY-MM-DD", s)
	}
	return d, nil
}
