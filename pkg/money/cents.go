// Package money represents monetary amounts as integer cents, the
// representation mandated end-to-end by this module's data model so that
// no component ever performs floating-point arithmetic on a dollar amount.
package money

import "fmt"

// Cents is a non-negative integer number of minor currency units.
type Cents int64

// FromDollars converts a decimal dollar amount to Cents, rounding to the
// nearest cent. Use only at the boundary where an inbound payload carries a
// float (never internally).
func FromDollars(dollars float64) Cents {
	return Cents(int64(dollars*100 + 0.5))
}

// Dollars converts back to a decimal amount for display or for outbound
// requests that carry dollars (the insurance verification request body).
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

func (c Cents) String() string {
	return fmt.Sprintf("%d.%02d", int64(c)/100, int64(c)%100)
}
