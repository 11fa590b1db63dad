// Package finance implements the personal finance domain: kuruş-based
// integer money, exchange rate lookup, and receipt analysis. Monetary
// amounts are stored and transported exclusively as integer minor units
// (kuruş, 1/100 TRY) — floats never cross a boundary.
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// kurusPerLira is the number of minor units in one Turkish lira.
const kurusPerLira = 100

// Kurus is a monetary amount in kuruş. Arithmetic on Kurus stays exact;
// decimal conversion happens only at parse and display boundaries.
type Kurus int64

// TL returns the amount in lira as an exact decimal.
func (k Kurus) TL() decimal.Decimal {
	return decimal.New(int64(k), -2)
}

// String renders the amount as a plain decimal lira value, e.g. "123.45".
func (k Kurus) String() string {
	return k.TL().StringFixed(2)
}

// ParseTL converts a decimal lira string ("123.45") into kuruş. Values
// with more than two fractional digits are rejected rather than rounded —
// a sub-kuruş amount indicates an upstream bug, not user intent.
func ParseTL(s string) (Kurus, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("finance: parsing amount %q: %w", s, err)
	}

	shifted := d.Mul(decimal.NewFromInt(kurusPerLira))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("finance: amount %q has sub-kuruş precision", s)
	}

	return Kurus(shifted.IntPart()), nil
}

// tryPrinter formats with Turkish number conventions.
var tryPrinter = message.NewPrinter(language.Turkish)

// FormatTRY renders the amount with the lira symbol for terminal display,
// e.g. "₺1.234,56". Display only — the float conversion never feeds back
// into stored amounts.
func FormatTRY(k Kurus) string {
	return FormatTRYDecimal(k.TL())
}

// FormatTRYDecimal renders an arbitrary decimal lira amount, e.g. an
// exchange rate, with the lira symbol.
func FormatTRYDecimal(d decimal.Decimal) string {
	return tryPrinter.Sprint(currency.Symbol(currency.TRY.Amount(d.InexactFloat64())))
}
