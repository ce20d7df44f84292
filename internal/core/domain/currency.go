package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a supported custodial asset.
type Currency string

const (
	CurrencyBTC Currency = "btc"
	CurrencyXMR Currency = "xmr"
)

// Currencies lists every supported currency in a stable order.
var Currencies = []Currency{CurrencyBTC, CurrencyXMR}

// ParseCurrency normalises s and reports whether it names a supported currency.
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", false
	}
	return c, true
}

// Valid reports whether c is supported.
func (c Currency) Valid() bool {
	return c == CurrencyBTC || c == CurrencyXMR
}

// Places is the number of fractional digits stored for c.
func (c Currency) Places() int32 {
	if c == CurrencyXMR {
		return 12
	}
	return 8
}

// Epsilon is one smallest unit of c.
func (c Currency) Epsilon() decimal.Decimal {
	return decimal.New(1, -c.Places())
}

// Truncate drops digits below the smallest unit of c.
func (c Currency) Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(c.Places())
}

// ValidAmount reports whether d is a positive amount representable in c.
func (c Currency) ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(c.Truncate(d))
}
