package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

// TPEx defaults
const (
	DefaultTPExBaseURL  = "https://www.tpex.org.tw"
	DefaultTPExInterval = 500 * time.Millisecond
	tpexDailyQuotesPath = "/www/zh-tw/afterTrading/dailyQuotes"
)

// TPExFetcher queries the OTC market one trading day per request
type TPExFetcher struct {
	*client
}

// NewTPExFetcher creates a fetcher for OTC (.TWO) symbols
func NewTPExFetcher(opts ...Option) *TPExFetcher {
	return &TPExFetcher{client: newClient(SourceTPEx, DefaultTPExBaseURL, DefaultTPExInterval, TPExPolicy, opts)}
}

// Name returns the source name
func (f *TPExFetcher) Name() string { return SourceTPEx }

// tpexDailyQuotes is the dailyQuotes response. Rows in tables[0].data are
// [code, name, close, change, open, high, low, average, volume, ...].
type tpexDailyQuotes struct {
	Stat   string `json:"stat"`
	Date   string `json:"date"`
	Tables []struct {
		Title  string         `json:"title"`
		Fields []string       `json:"fields"`
		Data   [][]flexString `json:"data"`
	} `json:"tables"`
}

// Fetch queries every calendar day of the window. Non-trading days come back
// with empty tables and are skipped.
func (f *TPExFetcher) Fetch(ctx context.Context, symbol models.Symbol, window models.FetchWindow) Result {
	ticker := symbol.WithSuffix(models.SuffixOTC)
	url := f.baseURL + tpexDailyQuotesPath

	var points []models.PricePoint
	var lastErr error
	for _, day := range calendar.Days(window.Start, window.End) {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		var body tpexDailyQuotes
		params := map[string]string{
			"response": "json",
			"date":     day.Format("2006/01/02"),
			"stockno":  symbol.Code,
		}
		if err := f.getJSON(ctx, url, params, &body); err != nil {
			lastErr = err
			f.logger.Warn().
				Str("symbol", ticker).
				Str("source", SourceTPEx).
				Str("day", calendar.FormatDate(day)).
				Str("start", calendar.FormatDate(window.Start)).
				Str("end", calendar.FormatDate(window.End)).
				Err(err).
				Msg("Failed to fetch day")
			continue
		}
		if len(body.Tables) == 0 {
			continue
		}

		if p, ok := f.findRow(ticker, symbol.Code, day, body.Tables[0].Data); ok {
			points = append(points, p)
		}
	}

	if len(points) == 0 && lastErr != nil {
		return Failed(SourceTPEx, lastErr)
	}
	return OK(SourceTPEx, models.NormalizeSeries(points))
}

// findRow parses the first row whose code matches exactly; later matches are ignored
func (f *TPExFetcher) findRow(ticker, code string, day time.Time, rows [][]flexString) (models.PricePoint, bool) {
	for _, raw := range rows {
		row := cells(raw)
		if len(row) < 9 || strings.TrimSpace(row[0]) != code {
			continue
		}

		p, ok, err := parsePoint(ticker, day, rawQuote{
			open: row[4], high: row[5], low: row[6], close: row[2], volume: row[8],
		})
		if err != nil {
			f.logger.Warn().
				Str("symbol", ticker).
				Str("source", SourceTPEx).
				Str("date", calendar.FormatDate(day)).
				Err(err).
				Msg("Dropping invalid row")
		}
		return p, ok && err == nil
	}
	return models.PricePoint{}, false
}
