// Package gridtools holds the pure-function helpers the grid engine uses
// to compare prices against grid lines.
package gridtools

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Epsilon is the price-equality tolerance in quote-currency units.
var Epsilon = decimal.NewFromFloat(1e-4)

// PriceEqual reports whether two prices agree within Epsilon.
func PriceEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// ContainsPrice reports whether prices contains one within Epsilon of p.
func ContainsPrice(prices []decimal.Decimal, p decimal.Decimal) bool {
	for _, q := range prices {
		if PriceEqual(p, q) {
			return true
		}
	}
	return false
}

// SplitMarket splits a QUOTE-BASE market identifier (e.g. "KRW-USDT") into
// its quote and base currency codes.
func SplitMarket(market string) (quote, base string, ok bool) {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
