package models

import (
	"strings"
	"time"
)

// Market classifies where a symbol trades
type Market string

// Market constants
const (
	MarketListed Market = "listed"
	MarketOTC    Market = "otc"
	MarketIndex  Market = "index"
	MarketETF    Market = "etf"
)

// Symbol suffix conventions
const (
	SuffixListed = ".TW"
	SuffixOTC    = ".TWO"
)

// BroadMarketIndex is the TAIEX weighted index ticker
const BroadMarketIndex = "^TWII"

// Symbol is a parsed ticker: base code plus optional market suffix
type Symbol struct {
	Raw    string `json:"symbol"`
	Code   string `json:"code"`
	Suffix string `json:"suffix,omitempty"`
}

// ParseSymbol splits "2330.TW" into code "2330" and suffix ".TW".
// Symbols without a recognised suffix keep the whole string as the code.
func ParseSymbol(raw string) Symbol {
	raw = strings.TrimSpace(raw)
	upper := strings.ToUpper(raw)
	switch {
	case strings.HasSuffix(upper, SuffixOTC):
		return Symbol{Raw: raw, Code: raw[:len(raw)-len(SuffixOTC)], Suffix: SuffixOTC}
	case strings.HasSuffix(upper, SuffixListed):
		return Symbol{Raw: raw, Code: raw[:len(raw)-len(SuffixListed)], Suffix: SuffixListed}
	default:
		return Symbol{Raw: raw, Code: raw}
	}
}

// IsIndex reports whether the symbol is the broad market index
func (s Symbol) IsIndex() bool {
	return s.Raw == BroadMarketIndex
}

// MarketFromSuffix returns the market implied by the suffix, if any
func (s Symbol) MarketFromSuffix() (Market, bool) {
	switch s.Suffix {
	case SuffixListed:
		return MarketListed, true
	case SuffixOTC:
		return MarketOTC, true
	}
	return "", false
}

// HasTWCode reports whether the code looks like a TW security code (leading four digits)
func (s Symbol) HasTWCode() bool {
	if len(s.Code) < 4 {
		return false
	}
	for _, r := range s.Code[:4] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WithSuffix returns the code joined with the given suffix
func (s Symbol) WithSuffix(suffix string) string {
	return s.Code + suffix
}

func (s Symbol) String() string {
	return s.Raw
}

// CatalogEntry is one row of the symbol catalog
type CatalogEntry struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Market    Market    `json:"market"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Code returns the base code of the catalog symbol
func (c CatalogEntry) Code() string {
	return ParseSymbol(c.Symbol).Code
}
