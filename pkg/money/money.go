// Package money converts between the two forms every monetary amount is held
// in: a decimal display string and a raw fixed-point integer at scale 6
// (smallest unit = 1e-6 of the display unit). Hashing and verification use
// the raw integer only.
package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point scale of the settlement token (6 decimals).
const Scale = 6

// ToRaw parses a decimal display string into the raw fixed-point integer.
// The amount must be strictly positive and must not carry more than Scale
// fractional digits.
func ToRaw(display string) (*big.Int, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return nil, fmt.Errorf("money: invalid amount %q: %w", display, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("money: amount %q must be positive", display)
	}
	shifted := d.Shift(Scale)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("money: amount %q exceeds scale %d", display, Scale)
	}
	return shifted.BigInt(), nil
}

// FromRaw renders a raw fixed-point integer as its decimal display string.
func FromRaw(raw *big.Int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -Scale).String()
}
