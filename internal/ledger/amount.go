package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of decimal places an amount may carry.
const MaxAmountScale = 2

// MaxAmount is the largest amount whose cents still fit a BIGINT column.
var MaxAmount = decimal.New(math.MaxInt64, -MaxAmountScale)

// ParseAmount converts user-entered text into an amount.
// Both "12.50" and "12,50" are accepted. Empty, malformed, negative or
// sub-cent input is rejected with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}

	clean = strings.ReplaceAll(clean, ",", ".")

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}

	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}

	return d, nil
}

// ValidateAmount checks that d is a non-negative whole number of cents no larger than MaxAmount.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d)
	}

	if d.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d, MaxAmount)
	}

	if !d.Equal(d.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d, MaxAmountScale)
	}

	return nil
}

// FormatAmount renders an amount with two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MaxAmountScale)
}
