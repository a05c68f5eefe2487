package client

import (
	"strings"

	"github.com/holiman/uint256"
)

const DefaultTokenDecimals = 12

// FormatBalance renders a planck amount in whole tokens, trimming trailing
// zeros of the fraction: 1_500_000_000_000 with 12 decimals is "1.5 UNIT".
func FormatBalance(amount *uint256.Int, decimals int, symbol string) string {
	if amount == nil {
		amount = new(uint256.Int)
	}
	digits := amount.Dec()
	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		whole, frac := digits[:len(digits)-decimals], strings.TrimRight(digits[len(digits)-decimals:], "0")
		digits = whole
		if frac != "" {
			digits += "." + frac
		}
	}
	if symbol == "" {
		return digits
	}
	return digits + " " + symbol
}
