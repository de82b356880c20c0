package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint represents one trading day of OHLCV data for a symbol.
// Open/High/Low may be unavailable upstream; Close is always present.
type PricePoint struct {
	Symbol    string              `json:"symbol"`
	TradeDate time.Time           `json:"date"`
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	Volume    int64               `json:"volume"`
}

// PriceSeries is an ordered, date-unique run of price points for one symbol
type PriceSeries []PricePoint

// NormalizeSeries returns a new series sorted ascending by trade date with
// duplicate dates collapsed; the later occurrence of a date wins.
func NormalizeSeries(points []PricePoint) PriceSeries {
	if len(points) == 0 {
		return nil
	}
	byDate := make(map[time.Time]int, len(points))
	out := make(PriceSeries, 0, len(points))
	for _, p := range points {
		if idx, ok := byDate[p.TradeDate]; ok {
			out[idx] = p
			continue
		}
		byDate[p.TradeDate] = len(out)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out
}

// Clip returns the points whose trade date falls inside the window
func (s PriceSeries) Clip(w FetchWindow) PriceSeries {
	var out PriceSeries
	for _, p := range s {
		if w.Contains(p.TradeDate) {
			out = append(out, p)
		}
	}
	return out
}

// WithSymbol returns a copy of the series stamped with the given symbol
func (s PriceSeries) WithSymbol(symbol string) PriceSeries {
	out := make(PriceSeries, len(s))
	for i, p := range s {
		p.Symbol = symbol
		out[i] = p
	}
	return out
}

// Dates returns the trade dates of the series in order
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, p := range s {
		dates[i] = p.TradeDate
	}
	return dates
}

// FetchWindow is an inclusive date range to fetch for one symbol
type FetchWindow struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start_date"`
	End    time.Time `json:"end_date"`
}

// Contains reports whether d lies within [Start, End]
func (w FetchWindow) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Empty reports whether the window covers no days
func (w FetchWindow) Empty() bool {
	return w.End.Before(w.Start)
}
