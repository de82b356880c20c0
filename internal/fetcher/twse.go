package fetcher

import (
	"context"
	"time"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

// TWSE defaults
const (
	DefaultTWSEBaseURL  = "https://www.twse.com.tw"
	DefaultTWSEInterval = 1500 * time.Millisecond
	twseStockDayPath    = "/exchangeReport/STOCK_DAY"
)

// TWSEFetcher queries the listed-market exchange one calendar month per request
type TWSEFetcher struct {
	*client
}

// NewTWSEFetcher creates a fetcher for listed (.TW) symbols
func NewTWSEFetcher(opts ...Option) *TWSEFetcher {
	return &TWSEFetcher{client: newClient(SourceTWSE, DefaultTWSEBaseURL, DefaultTWSEInterval, TWSEPolicy, opts)}
}

// Name returns the source name
func (f *TWSEFetcher) Name() string { return SourceTWSE }

// twseStockDay is the STOCK_DAY response. Rows are
// [date(ROC), volume, turnover, open, high, low, close, change, transactions].
type twseStockDay struct {
	Stat   string         `json:"stat"`
	Date   string         `json:"date"`
	Title  string         `json:"title"`
	Fields []string       `json:"fields"`
	Data   [][]flexString `json:"data"`
}

// Fetch retrieves every month touched by the window and keeps rows inside it.
// A failed month is logged and skipped; the call fails only when no month produced rows.
func (f *TWSEFetcher) Fetch(ctx context.Context, symbol models.Symbol, window models.FetchWindow) Result {
	ticker := symbol.WithSuffix(models.SuffixListed)
	url := f.baseURL + twseStockDayPath

	var points []models.PricePoint
	var lastErr error
	for _, month := range calendar.MonthStarts(window.Start, window.End) {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		var body twseStockDay
		params := map[string]string{
			"response": "json",
			"date":     month.Format("20060102"),
			"stockNo":  symbol.Code,
		}
		if err := f.getJSON(ctx, url, params, &body); err != nil {
			lastErr = err
			f.logger.Warn().
				Str("symbol", ticker).
				Str("source", SourceTWSE).
				Str("month", month.Format("2006-01")).
				Str("start", calendar.FormatDate(window.Start)).
				Str("end", calendar.FormatDate(window.End)).
				Err(err).
				Msg("Failed to fetch month")
			continue
		}
		if body.Stat != "OK" {
			f.logger.Debug().
				Str("symbol", ticker).
				Str("month", month.Format("2006-01")).
				Str("stat", body.Stat).
				Msg("No TWSE data for month")
			continue
		}

		for _, raw := range body.Data {
			p, ok := f.parseRow(ticker, cells(raw))
			if ok && window.Contains(p.TradeDate) {
				points = append(points, p)
			}
		}
	}

	if len(points) == 0 && lastErr != nil {
		return Failed(SourceTWSE, lastErr)
	}
	return OK(SourceTWSE, models.NormalizeSeries(points))
}

func (f *TWSEFetcher) parseRow(ticker string, row []string) (models.PricePoint, bool) {
	if len(row) < 7 {
		return models.PricePoint{}, false
	}

	date, err := calendar.ROCToGregorian(row[0])
	if err != nil {
		f.logger.Warn().Str("symbol", ticker).Str("source", SourceTWSE).Err(err).Msg("Skipping row with bad date")
		return models.PricePoint{}, false
	}

	p, ok, err := parsePoint(ticker, date, rawQuote{
		open: row[3], high: row[4], low: row[5], close: row[6], volume: row[1],
	})
	if err != nil {
		f.logger.Warn().
			Str("symbol", ticker).
			Str("source", SourceTWSE).
			Str("date", calendar.FormatDate(date)).
			Err(err).
			Msg("Dropping invalid row")
		return models.PricePoint{}, false
	}
	return p, ok
}
