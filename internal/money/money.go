// Package money implements the fixed-point amount type used across the
// engine. Amounts carry exactly four fractional decimal digits on a signed
// 64-bit integer; arithmetic is checked and never silently wraps.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const decimalPlaces = 4

type Amount int64

const (
	Zero Amount = 0
	Min  Amount = math.MinInt64
	Max  Amount = math.MaxInt64
)

var ErrOverflow = errors.New("amount overflow")

type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse amount %q: %s", e.Input, e.Reason)
}

// Parse accepts an optional leading minus, an integer part, and up to four
// fractional digits. Anything else, including exponent notation and amounts
// with more than four decimal places, is rejected.
func Parse(input string) (Amount, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, &ParseError{Input: input, Reason: "empty value"}
	}
	if err := checkShape(s); err != nil {
		return 0, &ParseError{Input: input, Reason: err.Error()}
	}

	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return 0, &ParseError{Input: input, Reason: "not a number"}
	}

	scaled := d.Shift(decimalPlaces).BigInt()
	if !scaled.IsInt64() {
		return 0, ErrOverflow
	}
	return Amount(scaled.Int64()), nil
}

func checkShape(s string) error {
	body := strings.TrimPrefix(s, "-")
	if body == "" {
		return errors.New("missing digits")
	}
	intPart, frac, hasDot := strings.Cut(body, ".")
	if intPart == "" || !allDigits(intPart) {
		return errors.New("invalid integer part")
	}
	if hasDot {
		if len(frac) > decimalPlaces {
			return errors.New("more than four decimal places")
		}
		if frac != "" && !allDigits(frac) {
			return errors.New("invalid fraction part")
		}
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String formats with exactly four fractional digits, signed only when
// negative.
func (a Amount) String() string {
	return decimal.New(int64(a), -decimalPlaces).StringFixed(decimalPlaces)
}

func (a Amount) IsNegative() bool { return a < 0 }
func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if b > 0 && a > Max-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < Min-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if b > 0 && a < Min+b {
		return 0, ErrOverflow
	}
	if b < 0 && a > Max+b {
		return 0, ErrOverflow
	}
	return a - b, nil
}
