// Package pricing computes stay length and booking totals. Amounts are kept
// at full decimal precision; rounding happens only when a value leaves the
// system (display, gateway minor units).
package pricing

import (
	"time"

	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// Totals is the price breakdown of a stay.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Taxes    decimal.Decimal `json:"taxes"`
	Total    decimal.Decimal `json:"total"`
}

// Engine holds the canonical tax rate.
type Engine struct {
	taxRate decimal.Decimal
}

func NewEngine(taxRate decimal.Decimal) *Engine {
	return &Engine{taxRate: taxRate}
}

func (e *Engine) TaxRate() decimal.Decimal {
	return e.taxRate
}

// Quote computes nights and totals for a nightly rate over [checkIn, checkOut).
func (e *Engine) Quote(rate decimal.Decimal, checkIn, checkOut time.Time) (int, Totals, error) {
	nights, err := ComputeNights(checkIn, checkOut)
	if err != nil {
		return 0, Totals{}, err
	}
	totals, err := ComputeTotals(rate, nights, e.taxRate)
	if err != nil {
		return 0, Totals{}, err
	}
	return nights, totals, nil
}

// ComputeNights returns the number of whole calendar days between the two
// dates. Times of day are ignored.
func ComputeNights(checkIn, checkOut time.Time) (int, error) {
	in := TruncateDay(checkIn)
	out := TruncateDay(checkOut)
	if !out.After(in) {
		return 0, apperrors.ErrInvalidDateRange
	}
	// calendar dates are in UTC so every day is exactly 24h
	return int(out.Sub(in).Hours() / 24), nil
}

func ComputeTotals(rate decimal.Decimal, nights int, taxRate decimal.Decimal) (Totals, error) {
	if rate.IsNegative() || taxRate.IsNegative() {
		return Totals{}, apperrors.Validation("rates must not be negative")
	}
	if nights < 1 {
		return Totals{}, apperrors.ErrInvalidDateRange
	}
	subtotal := rate.Mul(decimal.NewFromInt(int64(nights)))
	taxes := subtotal.Mul(taxRate)
	return Totals{
		Subtotal: subtotal,
		Taxes:    taxes,
		Total:    subtotal.Add(taxes),
	}, nil
}

// MinorUnits converts an amount to integer minor currency units (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Display rounds to two decimal places for presentation.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// TruncateDay drops the time of day and returns the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, apperrors.Validation("dates must use the YYYY-MM-DD format")
	}
	return t, nil
}

func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// StayNights lists the calendar date of every night in [checkIn, checkOut).
func StayNights(checkIn, checkOut time.Time) []time.Time {
	in := TruncateDay(checkIn)
	out := TruncateDay(checkOut)
	var nights []time.Time
	for d := in; d.Before(out); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}
	return nights
}
