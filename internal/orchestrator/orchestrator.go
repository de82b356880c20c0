// Package orchestrator decides which sources serve a symbol and in what order.
package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/fetcher"
	"github.com/trogers1052/twstock-service/internal/models"
)

// DefaultLookback is the window used when no start date is given
const DefaultLookback = 30 * 24 * time.Hour

// Route is the resolved identity of a requested symbol
type Route struct {
	Symbol models.Symbol
	Market models.Market
	// Key is the symbol rows are stored under: CODE.TW, CODE.TWO or the raw symbol
	Key string
}

// Outcome reports which source won and what every source returned
type Outcome struct {
	Route    Route
	Window   models.FetchWindow
	Source   string
	Series   models.PriceSeries
	Attempts []fetcher.Result
}

// Empty reports whether every source came back without rows
func (o Outcome) Empty() bool {
	return len(o.Series) == 0
}

// Orchestrator routes fetches to the exchange sources with Yahoo as fallback
type Orchestrator struct {
	twse     fetcher.Fetcher
	tpex     fetcher.Fetcher
	fallback fetcher.Fetcher
	catalog  *catalog.Cache
	now      func() time.Time
	logger   arbor.ILogger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCatalog enables catalog-based market classification
func WithCatalog(c *catalog.Cache) Option {
	return func(o *Orchestrator) {
		o.catalog = c
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(o *Orchestrator) {
		o.logger = common.OrSilent(logger)
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator over the listed, OTC and fallback fetchers
func New(twse, tpex, fallback fetcher.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		twse:     twse,
		tpex:     tpex,
		fallback: fallback,
		now:      time.Now,
		logger:   common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Today returns the current trading-calendar date in Taipei
func (o *Orchestrator) Today() time.Time {
	return calendar.DateOnly(o.now().In(calendar.Taipei))
}

// Resolve classifies a symbol: index first, then an explicit suffix, then the
// catalog, then the code-range heuristic
func (o *Orchestrator) Resolve(ctx context.Context, raw string) Route {
	sym := models.ParseSymbol(raw)
	if sym.IsIndex() {
		return Route{Symbol: sym, Market: models.MarketIndex, Key: sym.Raw}
	}
	if market, ok := sym.MarketFromSuffix(); ok {
		return newRoute(sym.Code, market)
	}

	if o.catalog != nil {
		entries, err := o.catalog.GetOrRefresh(ctx, o.now())
		if err != nil {
			o.logger.Warn().Str("symbol", raw).Err(err).Msg("Catalog unavailable, falling back to code ranges")
		} else if e, ok := catalog.Lookup(entries, sym.Code); ok {
			switch e.Market {
			case models.MarketIndex:
				return Route{Symbol: models.ParseSymbol(e.Symbol), Market: models.MarketIndex, Key: e.Symbol}
			case models.MarketOTC:
				return newRoute(sym.Code, models.MarketOTC)
			default:
				return newRoute(sym.Code, models.MarketListed)
			}
		}
	}

	if !sym.HasTWCode() {
		return Route{Symbol: sym, Market: models.MarketListed, Key: sym.Raw}
	}
	return newRoute(sym.Code, catalog.ClassifyByCodeRange(sym.Code))
}

func newRoute(code string, market models.Market) Route {
	suffix := models.SuffixListed
	if market == models.MarketOTC {
		suffix = models.SuffixOTC
	}
	key := code + suffix
	return Route{Symbol: models.ParseSymbol(key), Market: market, Key: key}
}

// Classify returns the market a symbol is routed to
func (o *Orchestrator) Classify(ctx context.Context, raw string) models.Market {
	return o.Resolve(ctx, raw).Market
}

// Window applies the defaults: end is today, start is DefaultLookback before end
func (o *Orchestrator) Window(key string, start, end *time.Time) models.FetchWindow {
	w := models.FetchWindow{Symbol: key, End: o.Today()}
	if end != nil {
		w.End = calendar.DateOnly(*end)
	}
	w.Start = w.End.Add(-DefaultLookback)
	if start != nil {
		w.Start = calendar.DateOnly(*start)
	}
	return w
}

// Fetch resolves the symbol, applies the default window and fetches it
func (o *Orchestrator) Fetch(ctx context.Context, raw string, start, end *time.Time) Outcome {
	route := o.Resolve(ctx, raw)
	return o.FetchRoute(ctx, route, o.Window(route.Key, start, end))
}

// FetchRoute queries the sources for a resolved route in priority order.
// The first non-empty series wins as a whole; results are never merged.
func (o *Orchestrator) FetchRoute(ctx context.Context, route Route, window models.FetchWindow) Outcome {
	out := Outcome{Route: route, Window: window}
	if window.Empty() {
		return out
	}

	for _, f := range o.chain(route.Market) {
		if f == nil {
			continue
		}
		res := f.Fetch(ctx, route.Symbol, window)
		out.Attempts = append(out.Attempts, res)

		if res.Empty() {
			if res.Status == fetcher.StatusFailed {
				o.logger.Warn().
					Str("symbol", route.Key).
					Str("source", f.Name()).
					Str("start", calendar.FormatDate(window.Start)).
					Str("end", calendar.FormatDate(window.End)).
					Err(res.Err).
					Msg("Source failed, trying next")
			} else {
				o.logger.Info().
					Str("symbol", route.Key).
					Str("source", f.Name()).
					Str("start", calendar.FormatDate(window.Start)).
					Str("end", calendar.FormatDate(window.End)).
					Msg("Source returned no rows, trying next")
			}
			continue
		}

		out.Source = res.Source
		out.Series = res.Series.WithSymbol(route.Key)
		o.logger.Info().
			Str("symbol", route.Key).
			Str("source", res.Source).
			Int("rows", len(out.Series)).
			Msg("Fetched price series")
		return out
	}
	return out
}

func (o *Orchestrator) chain(market models.Market) []fetcher.Fetcher {
	switch market {
	case models.MarketIndex:
		return []fetcher.Fetcher{o.fallback}
	case models.MarketOTC:
		return []fetcher.Fetcher{o.tpex, o.fallback}
	default:
		return []fetcher.Fetcher{o.twse, o.fallback}
	}
}
