// Package validation parses upstream numeric fields and enforces price sanity bounds.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/twstock-service/internal/models"
)

// Bounds for TW market prices
var (
	PriceUpperBound = decimal.NewFromInt(30000)
	IndexLowerBound = decimal.NewFromInt(1000)
)

// ValidationError describes a field that failed parsing or a sanity check
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsSentinel reports whether raw is one of the upstream "no value" markers
func IsSentinel(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "--", "---", "----", "X", "N/A":
		return true
	}
	return false
}

func clean(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
}

// ParseDecimal parses a price field. Sentinels yield ok=false with no error.
func ParseDecimal(field, raw string) (decimal.Decimal, bool, error) {
	if IsSentinel(raw) {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(clean(raw))
	if err != nil {
		return decimal.Zero, false, &ValidationError{Field: field, Value: raw, Reason: "not a number"}
	}
	return d, true, nil
}

// ParseNullDecimal parses an optional price field into a NullDecimal
func ParseNullDecimal(field, raw string) (decimal.NullDecimal, error) {
	d, ok, err := ParseDecimal(field, raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: ok}, nil
}

// ParseVolume parses a share volume; sentinels map to zero
func ParseVolume(raw string) (int64, error) {
	if IsSentinel(raw) {
		return 0, nil
	}
	cleaned := clean(raw)
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err == nil {
		return v, nil
	}
	// some feeds render volume with a fractional part
	d, derr := decimal.NewFromString(cleaned)
	if derr != nil {
		return 0, &ValidationError{Field: "volume", Value: raw, Reason: "not a number"}
	}
	return d.IntPart(), nil
}

// CheckPriceBounds verifies every present price is positive and strictly below the upper bound
func CheckPriceBounds(p models.PricePoint) error {
	check := func(field string, d decimal.Decimal) error {
		if !d.LessThan(PriceUpperBound) {
			return &ValidationError{Field: field, Value: d.String(), Reason: "exceeds upper bound " + PriceUpperBound.String()}
		}
		if d.IsNegative() {
			return &ValidationError{Field: field, Value: d.String(), Reason: "negative price"}
		}
		return nil
	}

	if !p.Close.IsPositive() {
		return &ValidationError{Field: "close", Value: p.Close.String(), Reason: "close must be positive"}
	}
	if err := check("close", p.Close); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{{"open", p.Open}, {"high", p.High}, {"low", p.Low}} {
		if !f.v.Valid {
			continue
		}
		if err := check(f.name, f.v.Decimal); err != nil {
			return err
		}
	}
	return nil
}

// CheckIndexPoint verifies every present price of an index bar lies within [1000, 30000]
func CheckIndexPoint(p models.PricePoint) error {
	if err := CheckIndexBounds(p.Close); err != nil {
		return err
	}
	for _, v := range []decimal.NullDecimal{p.Open, p.High, p.Low} {
		if !v.Valid {
			continue
		}
		if err := CheckIndexBounds(v.Decimal); err != nil {
			return err
		}
	}
	return nil
}

// CheckIndexBounds verifies an index level lies within [1000, 30000]
func CheckIndexBounds(level decimal.Decimal) error {
	if level.LessThan(IndexLowerBound) || level.GreaterThan(PriceUpperBound) {
		return &ValidationError{Field: "index", Value: level.String(), Reason: "outside [1000, 30000]"}
	}
	return nil
}
