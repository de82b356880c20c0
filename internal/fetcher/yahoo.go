package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
	"github.com/trogers1052/twstock-service/internal/validation"
)

// Yahoo defaults
const (
	DefaultYahooBaseURL    = "https://query1.finance.yahoo.com"
	DefaultYahooAltBaseURL = "https://query2.finance.yahoo.com"
	DefaultYahooInterval   = 500 * time.Millisecond
	yahooChartPath         = "/v8/finance/chart/"
	yahooPriceScale        = 2
)

// YahooFetcher is the generic fallback source. It also serves the broad
// market index, which the exchanges do not publish as a daily series.
type YahooFetcher struct {
	*client
	now func() time.Time
}

// NewYahooFetcher creates the fallback fetcher
func NewYahooFetcher(opts ...Option) *YahooFetcher {
	c := newClient(SourceYahoo, DefaultYahooBaseURL, DefaultYahooInterval, YahooPolicy, opts)
	if c.altBaseURL == "" {
		c.altBaseURL = DefaultYahooAltBaseURL
	}
	return &YahooFetcher{client: c, now: time.Now}
}

// Name returns the source name
func (f *YahooFetcher) Name() string { return SourceYahoo }

// yahooChart is the v8 chart response
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset *int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// strategy is one way of asking the chart API for a window
type strategy struct {
	name   string
	host   string
	params func(window models.FetchWindow) map[string]string
}

func (f *YahooFetcher) strategies() []strategy {
	return []strategy{
		{
			name: "range",
			host: f.baseURL,
			params: func(w models.FetchWindow) map[string]string {
				return map[string]string{
					"period1":  unixString(w.Start),
					"period2":  unixString(w.End.AddDate(0, 0, 1)),
					"interval": "1d",
				}
			},
		},
		{
			name: "history",
			host: f.altBaseURL,
			params: func(w models.FetchWindow) map[string]string {
				return map[string]string{
					"range":                rangeFor(f.now().Sub(w.Start)),
					"interval":             "1d",
					"events":               "history",
					"includeAdjustedClose": "true",
				}
			},
		},
		{
			name: "period",
			host: f.baseURL,
			params: func(models.FetchWindow) map[string]string {
				return map[string]string{"range": "1mo", "interval": "1d"}
			},
		},
	}
}

// rangeFor picks the smallest chart range covering a lookback
func rangeFor(lookback time.Duration) string {
	days := int(lookback.Hours()/24) + 1
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1825:
		return "5y"
	}
	return "max"
}

// candidates lists the tickers to try: both exchange suffixes for TW codes,
// the preferred one first, or the raw symbol otherwise
func candidates(symbol models.Symbol) []string {
	switch symbol.Suffix {
	case models.SuffixListed:
		return []string{symbol.WithSuffix(models.SuffixListed), symbol.WithSuffix(models.SuffixOTC)}
	case models.SuffixOTC:
		return []string{symbol.WithSuffix(models.SuffixOTC), symbol.WithSuffix(models.SuffixListed)}
	}
	if symbol.HasTWCode() {
		return []string{symbol.WithSuffix(models.SuffixListed), symbol.WithSuffix(models.SuffixOTC)}
	}
	return []string{symbol.Raw}
}

// Fetch tries each candidate ticker with each strategy; the first non-empty,
// in-bounds series wins
func (f *YahooFetcher) Fetch(ctx context.Context, symbol models.Symbol, window models.FetchWindow) Result {
	if symbol.IsIndex() {
		return f.fetchIndex(ctx, symbol, window)
	}

	var lastErr error
	for _, ticker := range candidates(symbol) {
		for _, s := range f.strategies() {
			if ctx.Err() != nil {
				return Failed(SourceYahoo, ctx.Err())
			}

			series, err := f.chart(ctx, s.host, ticker, s.params(window))
			if err != nil {
				lastErr = err
				f.logger.Warn().
					Str("symbol", ticker).
					Str("source", SourceYahoo).
					Str("strategy", s.name).
					Str("start", calendar.FormatDate(window.Start)).
					Str("end", calendar.FormatDate(window.End)).
					Err(err).
					Msg("Chart request failed")
				continue
			}

			series = series.Clip(window)
			if len(series) == 0 {
				continue
			}
			if err := checkSeries(series); err != nil {
				lastErr = err
				f.logger.Warn().
					Str("symbol", ticker).
					Str("source", SourceYahoo).
					Str("strategy", s.name).
					Err(err).
					Msg("Rejecting series with out of bound prices")
				continue
			}

			f.logger.Debug().
				Str("symbol", ticker).
				Str("strategy", s.name).
				Int("rows", len(series)).
				Msg("Chart strategy succeeded")
			return OK(SourceYahoo, series)
		}
	}

	if lastErr != nil && !validation.IsValidationError(lastErr) {
		return Failed(SourceYahoo, lastErr)
	}
	return Empty(SourceYahoo)
}

// fetchIndex serves the broad market index from a one year daily history
func (f *YahooFetcher) fetchIndex(ctx context.Context, symbol models.Symbol, window models.FetchWindow) Result {
	series, err := f.chart(ctx, f.baseURL, symbol.Raw, map[string]string{"range": "1y", "interval": "1d"})
	if err != nil {
		f.logger.Warn().
			Str("symbol", symbol.Raw).
			Str("source", SourceYahoo).
			Str("start", calendar.FormatDate(window.Start)).
			Str("end", calendar.FormatDate(window.End)).
			Err(err).
			Msg("Index history request failed")
		return Failed(SourceYahoo, err)
	}

	for _, p := range series {
		if err := validation.CheckIndexPoint(p); err != nil {
			f.logger.Warn().
				Str("symbol", symbol.Raw).
				Str("date", calendar.FormatDate(p.TradeDate)).
				Err(err).
				Msg("Rejecting index history")
			return Empty(SourceYahoo)
		}
	}
	return OK(SourceYahoo, series.Clip(window))
}

// chart fetches and parses one chart response into a normalized series
func (f *YahooFetcher) chart(ctx context.Context, host, ticker string, params map[string]string) (models.PriceSeries, error) {
	var body yahooChart
	if err := f.getJSON(ctx, host+yahooChartPath+url.PathEscape(ticker), params, &body); err != nil {
		return nil, err
	}
	if body.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := body.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePrice := at(quote.Close, i)
		if closePrice == nil || *closePrice <= 0 {
			continue // holidays and halted days
		}

		var date time.Time
		if result.Meta.GMTOffset != nil {
			date = calendar.DateOnly(time.Unix(ts+*result.Meta.GMTOffset, 0).UTC())
		} else {
			date = calendar.TradeDateFromUnix(ts)
		}

		p := models.PricePoint{
			Symbol:    ticker,
			TradeDate: date,
			Open:      nullPrice(at(quote.Open, i)),
			High:      nullPrice(at(quote.High, i)),
			Low:       nullPrice(at(quote.Low, i)),
			Close:     decimal.NewFromFloat(*closePrice).Round(yahooPriceScale),
		}
		if v := at(quote.Volume, i); v != nil {
			p.Volume = int64(*v)
		}
		points = append(points, p)
	}
	return models.NormalizeSeries(points), nil
}

// checkSeries rejects the whole series when any point breaks the price bounds
func checkSeries(series models.PriceSeries) error {
	for _, p := range series {
		if err := validation.CheckPriceBounds(p); err != nil {
			return fmt.Errorf("%s on %s: %w", p.Symbol, calendar.FormatDate(p.TradeDate), err)
		}
	}
	return nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func nullPrice(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v).Round(yahooPriceScale))
}
