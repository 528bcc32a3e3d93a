package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBaseCurrency is the asset every new ledger is seeded with.
const DefaultBaseCurrency = "usd"

// Asset is a named balance held by the ledger.
// Quantity has no floor: it may go negative.
type Asset struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// NewAsset is a shorthand used mostly by tests and the service layer.
func NewAsset(symbol string, quantity decimal.Decimal) Asset {
	return Asset{Symbol: symbol, Quantity: quantity}
}

// Negated returns the same asset with its quantity sign flipped.
func (a Asset) Negated() Asset {
	return Asset{Symbol: a.Symbol, Quantity: a.Quantity.Neg()}
}

// Pair identifies a tradable instrument, e.g. base "btc" quoted in "usd".
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// String returns "base/quote".
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Equal reports whether both legs match.
func (p Pair) Equal(other Pair) bool {
	return p.Base == other.Base && p.Quote == other.Quote
}

// ParsePair parses "btc/usd" or "btc-usd". Symbols are lower-cased.
func ParsePair(s string) (Pair, error) {
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	base, quote, ok := strings.Cut(s, sep)
	base = strings.ToLower(strings.TrimSpace(base))
	quote = strings.ToLower(strings.TrimSpace(quote))
	if !ok || base == "" || quote == "" {
		return Pair{}, &RequestError{Field: "pair", Err: ErrInvalidRequest}
	}
	return Pair{Base: base, Quote: quote}, nil
}
