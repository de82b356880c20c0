package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

// Batch sizes for the multi-row upserts and their reduced-size retries
const (
	PriceBatchSize          = 1000
	PriceFallbackBatchSize  = 200
	ReturnBatchSize         = 2000
	ReturnFallbackBatchSize = 500
)

// UpsertResult counts rows written by an upsert and how many of them already existed
type UpsertResult struct {
	Written    int64 `json:"written"`
	Duplicates int64 `json:"duplicates"`
}

// New returns the number of rows that did not exist before the upsert
func (r UpsertResult) New() int64 {
	if n := r.Written - r.Duplicates; n > 0 {
		return n
	}
	return 0
}

func (r *UpsertResult) add(o UpsertResult) {
	r.Written += o.Written
	r.Duplicates += o.Duplicates
}

const countExistingPrices = `
	SELECT COUNT(*)
	FROM stock_prices p
	JOIN unnest($1::text[], $2::date[]) AS k(symbol, date)
	  ON p.symbol = k.symbol AND p.date = k.date
`

const priceColumns = 8

// UpsertPrices writes price rows, overwriting every field of rows that already exist.
// Duplicates are counted inside the same transaction as the write.
func (db *DB) UpsertPrices(ctx context.Context, points []models.PricePoint) (UpsertResult, error) {
	rows := dedupePrices(points)

	var total UpsertResult
	for start := 0; start < len(rows); start += PriceBatchSize {
		page := rows[start:minInt(start+PriceBatchSize, len(rows))]

		res, err := db.upsertPricePage(ctx, page)
		if err != nil {
			db.logger.Warn().
				Str("symbol", page[0].Symbol).
				Int("rows", len(page)).
				Err(err).
				Msg("Price batch failed, retrying in smaller batches")

			res, err = db.upsertPricesInBatches(ctx, page)
			if err != nil {
				return total, &PersistenceError{Table: "stock_prices", Rows: len(page), Err: err}
			}
		}
		total.add(res)
	}
	return total, nil
}

func (db *DB) upsertPricesInBatches(ctx context.Context, rows []models.PricePoint) (UpsertResult, error) {
	var total UpsertResult
	for start := 0; start < len(rows); start += PriceFallbackBatchSize {
		res, err := db.upsertPricePage(ctx, rows[start:minInt(start+PriceFallbackBatchSize, len(rows))])
		if err != nil {
			return total, err
		}
		total.add(res)
	}
	return total, nil
}

func (db *DB) upsertPricePage(ctx context.Context, page []models.PricePoint) (UpsertResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	symbols := make([]string, len(page))
	dates := make([]string, len(page))
	for i, p := range page {
		symbols[i] = p.Symbol
		dates[i] = calendar.FormatDate(p.TradeDate)
	}

	var res UpsertResult
	if err := tx.QueryRowContext(ctx, countExistingPrices, pq.Array(symbols), pq.Array(dates)).Scan(&res.Duplicates); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to count existing prices: %w", err)
	}

	now := time.Now()
	args := make([]interface{}, 0, len(page)*priceColumns)
	for i, p := range page {
		args = append(args, p.Symbol, dates[i], p.Open, p.High, p.Low, p.Close, p.Volume, now)
	}

	query := `
		INSERT INTO stock_prices (symbol, date, open, high, low, close, volume, updated_at)
		VALUES ` + placeholders(len(page), priceColumns) + `
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at
	`
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert prices: %w", err)
	}
	if res.Written, err = result.RowsAffected(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// dedupePrices keeps the last row per (symbol, date); one INSERT cannot touch a key twice
func dedupePrices(points []models.PricePoint) []models.PricePoint {
	type key struct {
		symbol string
		date   string
	}
	index := make(map[key]int, len(points))
	out := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		k := key{p.Symbol, calendar.FormatDate(p.TradeDate)}
		if i, ok := index[k]; ok {
			out[i] = p
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

// placeholders renders "($1, $2), ($3, $4)" for rows of cols parameters
func placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// LatestPriceDate returns the most recent stored date for a symbol, or nil when none
func (db *DB) LatestPriceDate(ctx context.Context, symbol string) (*time.Time, error) {
	var latest sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(date) FROM stock_prices WHERE symbol = $1`, symbol,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price date for %s: %w", symbol, err)
	}
	if !latest.Valid {
		return nil, nil
	}
	d := calendar.DateOnly(latest.Time)
	return &d, nil
}

// LatestPriceDates returns the watermark of every given symbol that has rows
func (db *DB) LatestPriceDates(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT symbol, MAX(date)
		FROM stock_prices
		WHERE symbol = ANY($1)
		GROUP BY symbol
	`, pq.Array(symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price dates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time, len(symbols))
	for rows.Next() {
		var symbol string
		var latest time.Time
		if err := rows.Scan(&symbol, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan latest price date: %w", err)
		}
		out[symbol] = calendar.DateOnly(latest)
	}
	return out, rows.Err()
}

// GetPriceRange returns a symbol's stored prices ordered by date. Nil bounds are open.
func (db *DB) GetPriceRange(ctx context.Context, symbol string, start, end *time.Time) (models.PriceSeries, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM stock_prices
		WHERE symbol = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, nullDate(start), nullDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to get price range: %w", err)
	}
	defer rows.Close()

	var series models.PriceSeries
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Symbol, &p.TradeDate, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.TradeDate = calendar.DateOnly(p.TradeDate)
		series = append(series, p)
	}
	return series, rows.Err()
}

// ResolveSymbol maps a bare code such as "2330" onto the stored "2330.TW" or
// "2330.TWO" form. Anything else, or a code with no stored rows, is returned unchanged.
func (db *DB) ResolveSymbol(ctx context.Context, raw string) (string, error) {
	sym := models.ParseSymbol(raw)
	if sym.Suffix != "" || !isDigits(sym.Code) {
		return raw, nil
	}

	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_prices WHERE symbol = $1)`, raw,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check symbol %s: %w", raw, err)
	}
	if exists {
		return raw, nil
	}

	var resolved string
	err = db.conn.QueryRowContext(ctx,
		`SELECT symbol FROM stock_prices WHERE symbol IN ($1, $2) ORDER BY symbol LIMIT 1`,
		sym.WithSuffix(models.SuffixListed), sym.WithSuffix(models.SuffixOTC),
	).Scan(&resolved)
	if err == sql.ErrNoRows {
		return raw, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve symbol %s: %w", raw, err)
	}
	return resolved, nil
}

// Statistics summarises both tables for the health endpoint
func (db *DB) Statistics(ctx context.Context) (*models.Statistics, error) {
	var s models.Statistics
	var earliest, latest sql.NullTime

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT symbol), MIN(date), MAX(date)
		FROM stock_prices
	`).Scan(&s.PriceRecords, &s.UniqueSymbols, &earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get price statistics: %w", err)
	}

	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_returns`).Scan(&s.ReturnRecords); err != nil {
		return nil, fmt.Errorf("failed to get return statistics: %w", err)
	}

	if earliest.Valid {
		d := calendar.DateOnly(earliest.Time)
		s.EarliestDate = &d
	}
	if latest.Valid {
		d := calendar.DateOnly(latest.Time)
		s.LatestDate = &d
	}
	return &s, nil
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return calendar.FormatDate(*t)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
