package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/twstock-service/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn), mock
}

func pricePoints(symbol string, n int) []models.PricePoint {
	out := make([]models.PricePoint, n)
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.PricePoint{
			Symbol:    symbol,
			TradeDate: day.AddDate(0, 0, i),
			Close:     decimal.NewFromInt(int64(100 + i%50)),
			Volume:    1000,
		}
	}
	return out
}

func expectPricePage(mock sqlmock.Sqlmock, existing, written int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM stock_prices p\s+JOIN unnest`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(existing))
	mock.ExpectExec(`INSERT INTO stock_prices`).
		WillReturnResult(sqlmock.NewResult(0, written))
	mock.ExpectCommit()
}

func TestUpsertPrices_Mock(t *testing.T) {
	ctx := context.Background()

	t.Run("counts duplicates in the same transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectPricePage(mock, 2, 3)

		res, err := db.UpsertPrices(ctx, pricePoints("2330.TW", 3))
		require.NoError(t, err)
		assert.Equal(t, UpsertResult{Written: 3, Duplicates: 2}, res)
		assert.Equal(t, int64(1), res.New())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pages above the batch size", func(t *testing.T) {
		db, mock := newMockDB(t)
		expectPricePage(mock, 0, PriceBatchSize)
		expectPricePage(mock, 0, 1)

		res, err := db.UpsertPrices(ctx, pricePoints("2330.TW", PriceBatchSize+1))
		require.NoError(t, err)
		assert.Equal(t, int64(PriceBatchSize+1), res.Written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed page is retried in smaller batches", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`INSERT INTO stock_prices`).
			WillReturnError(errors.New("pq: out of shared memory"))
		mock.ExpectRollback()
		expectPricePage(mock, 0, PriceFallbackBatchSize)
		expectPricePage(mock, 10, 50)

		res, err := db.UpsertPrices(ctx, pricePoints("2330.TW", PriceFallbackBatchSize+50))
		require.NoError(t, err)
		assert.Equal(t, UpsertResult{Written: PriceFallbackBatchSize + 50, Duplicates: 10}, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure after the retry is a persistence error", func(t *testing.T) {
		db, mock := newMockDB(t)
		for i := 0; i < 2; i++ {
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT COUNT`).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			mock.ExpectExec(`INSERT INTO stock_prices`).
				WillReturnError(errors.New("pq: connection reset"))
			mock.ExpectRollback()
		}

		_, err := db.UpsertPrices(ctx, pricePoints("2330.TW", 5))
		require.Error(t, err)

		var perr *PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "stock_prices", perr.Table)
		assert.Equal(t, 5, perr.Rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate keys in one call collapse to the last row", func(t *testing.T) {
		db, mock := newMockDB(t)
		day := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
		points := []models.PricePoint{
			{Symbol: "2330.TW", TradeDate: day, Close: decimal.NewFromInt(580), Volume: 1},
			{Symbol: "2330.TW", TradeDate: day, Close: decimal.NewFromInt(585), Volume: 2},
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`INSERT INTO stock_prices`).
			WithArgs("2330.TW", "2024-05-20", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "585", int64(2), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := db.UpsertPrices(ctx, points)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to write touches nothing", func(t *testing.T) {
		db, mock := newMockDB(t)

		res, err := db.UpsertPrices(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, res.Written)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertReturns_Mock(t *testing.T) {
	ctx := context.Background()
	r := 0.01
	points := make([]models.ReturnPoint, ReturnFallbackBatchSize+1)
	for i := range points {
		points[i] = models.ReturnPoint{
			Symbol:      "2330.TW",
			TradeDate:   time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			DailyReturn: &r,
		}
	}

	t.Run("falls back to smaller batches", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`INSERT INTO stock_returns`).WillReturnError(errors.New("pq: deadlock detected"))
		mock.ExpectExec(`INSERT INTO stock_returns`).WillReturnResult(sqlmock.NewResult(0, ReturnFallbackBatchSize))
		mock.ExpectExec(`INSERT INTO stock_returns`).WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := db.UpsertReturns(ctx, points)
		require.NoError(t, err)
		assert.Equal(t, int64(ReturnFallbackBatchSize+1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second failure is reported", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`INSERT INTO stock_returns`).WillReturnError(errors.New("pq: deadlock detected"))
		mock.ExpectExec(`INSERT INTO stock_returns`).WillReturnError(errors.New("pq: deadlock detected"))

		_, err := db.UpsertReturns(ctx, points)
		var perr *PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "stock_returns", perr.Table)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolveSymbol_Mock(t *testing.T) {
	ctx := context.Background()

	t.Run("bare code resolves to the stored suffix", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs("6488").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT symbol FROM stock_prices WHERE symbol IN`).WithArgs("6488.TW", "6488.TWO").
			WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("6488.TWO"))

		got, err := db.ResolveSymbol(ctx, "6488")
		require.NoError(t, err)
		assert.Equal(t, "6488.TWO", got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("suffixed and non numeric symbols skip the lookup", func(t *testing.T) {
		db, mock := newMockDB(t)

		for _, s := range []string{"2330.TW", "^TWII", "AAPL"} {
			got, err := db.ResolveSymbol(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2), ($3, $4), ($5, $6)", placeholders(3, 2))
	assert.Equal(t, "($1)", placeholders(1, 1))
}
