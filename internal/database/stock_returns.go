package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

const returnColumns = 7

// UpsertReturns writes return rows, overwriting existing (symbol, date) rows,
// and returns the number of rows written
func (db *DB) UpsertReturns(ctx context.Context, points []models.ReturnPoint) (int64, error) {
	rows := dedupeReturns(points)

	var written int64
	for start := 0; start < len(rows); start += ReturnBatchSize {
		page := rows[start:minInt(start+ReturnBatchSize, len(rows))]

		n, err := db.upsertReturnPage(ctx, page)
		if err != nil {
			db.logger.Warn().
				Str("symbol", page[0].Symbol).
				Int("rows", len(page)).
				Err(err).
				Msg("Return batch failed, retrying in smaller batches")

			n, err = db.upsertReturnsInBatches(ctx, page)
			if err != nil {
				return written, &PersistenceError{Table: "stock_returns", Rows: len(page), Err: err}
			}
		}
		written += n
	}
	return written, nil
}

func (db *DB) upsertReturnsInBatches(ctx context.Context, rows []models.ReturnPoint) (int64, error) {
	var written int64
	for start := 0; start < len(rows); start += ReturnFallbackBatchSize {
		n, err := db.upsertReturnPage(ctx, rows[start:minInt(start+ReturnFallbackBatchSize, len(rows))])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (db *DB) upsertReturnPage(ctx context.Context, page []models.ReturnPoint) (int64, error) {
	now := time.Now()
	args := make([]interface{}, 0, len(page)*returnColumns)
	for _, r := range page {
		args = append(args,
			r.Symbol, calendar.FormatDate(r.TradeDate),
			r.DailyReturn, r.WeeklyReturn, r.MonthlyReturn, r.CumulativeReturn,
			now,
		)
	}

	query := `
		INSERT INTO stock_returns (symbol, date, daily_return, weekly_return, monthly_return, cumulative_return, updated_at)
		VALUES ` + placeholders(len(page), returnColumns) + `
		ON CONFLICT (symbol, date) DO UPDATE SET
			daily_return = EXCLUDED.daily_return,
			weekly_return = EXCLUDED.weekly_return,
			monthly_return = EXCLUDED.monthly_return,
			cumulative_return = EXCLUDED.cumulative_return,
			updated_at = EXCLUDED.updated_at
	`
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert returns: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func dedupeReturns(points []models.ReturnPoint) []models.ReturnPoint {
	type key struct {
		symbol string
		date   string
	}
	index := make(map[key]int, len(points))
	out := make([]models.ReturnPoint, 0, len(points))
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

// GetReturnRange returns a symbol's stored returns ordered by date. Nil bounds are open.
func (db *DB) GetReturnRange(ctx context.Context, symbol string, start, end *time.Time) ([]models.ReturnPoint, error) {
	query := `
		SELECT symbol, date, daily_return, weekly_return, monthly_return, cumulative_return
		FROM stock_returns
		WHERE symbol = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, nullDate(start), nullDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to get return range: %w", err)
	}
	defer rows.Close()

	var out []models.ReturnPoint
	for rows.Next() {
		var r models.ReturnPoint
		if err := rows.Scan(&r.Symbol, &r.TradeDate, &r.DailyReturn, &r.WeeklyReturn, &r.MonthlyReturn, &r.CumulativeReturn); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		r.TradeDate = calendar.DateOnly(r.TradeDate)
		out = append(out, r)
	}
	return out, rows.Err()
}
