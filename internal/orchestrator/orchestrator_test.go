package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/fetcher"
	"github.com/trogers1052/twstock-service/internal/models"
)

// fakeFetcher returns a scripted result and records what it was asked for
type fakeFetcher struct {
	name   string
	result fetcher.Result

	mu      sync.Mutex
	symbols []models.Symbol
	windows []models.FetchWindow
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(_ context.Context, s models.Symbol, w models.FetchWindow) fetcher.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = append(f.symbols, s)
	f.windows = append(f.windows, w)
	return f.result
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.symbols)
}

func series(symbol string, closes ...int64) models.PriceSeries {
	out := make(models.PriceSeries, len(closes))
	for i, c := range closes {
		out[i] = models.PricePoint{
			Symbol:    symbol,
			TradeDate: time.Date(2024, 5, 20+i, 0, 0, 0, 0, time.UTC),
			Close:     decimal.NewFromInt(c),
		}
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

func newFakes() (twse, tpex, yahoo *fakeFetcher) {
	return &fakeFetcher{name: fetcher.SourceTWSE, result: fetcher.Empty(fetcher.SourceTWSE)},
		&fakeFetcher{name: fetcher.SourceTPEx, result: fetcher.Empty(fetcher.SourceTPEx)},
		&fakeFetcher{name: fetcher.SourceYahoo, result: fetcher.Empty(fetcher.SourceYahoo)}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	twse, tpex, yahoo := newFakes()
	cache := catalog.NewCache(catalog.BackupLoader{})
	o := New(twse, tpex, yahoo, WithCatalog(cache), WithClock(func() time.Time { return fixedNow }))

	tests := []struct {
		in     string
		market models.Market
		key    string
	}{
		{"2330", models.MarketListed, "2330.TW"},
		{"2330.TW", models.MarketListed, "2330.TW"},
		{"6488", models.MarketOTC, "6488.TWO"},
		{"6488.TWO", models.MarketOTC, "6488.TWO"},
		{"3008", models.MarketListed, "3008.TW"}, // catalog overrides the code-range guess
		{"3443", models.MarketOTC, "3443.TWO"},   // not in catalog, known OTC
		{"0050", models.MarketListed, "0050.TW"},
		{"^TWII", models.MarketIndex, "^TWII"},
		{"AAPL", models.MarketListed, "AAPL"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := o.Resolve(ctx, tt.in)
			assert.Equal(t, tt.market, r.Market)
			assert.Equal(t, tt.key, r.Key)
		})
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	clock := WithClock(func() time.Time { return fixedNow })

	t.Run("listed code goes to the exchange only", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		twse.result = fetcher.OK(fetcher.SourceTWSE, series("2330.TW", 100, 101))
		o := New(twse, tpex, yahoo, clock)

		out := o.Fetch(ctx, "2330", nil, nil)

		assert.Equal(t, fetcher.SourceTWSE, out.Source)
		assert.Len(t, out.Series, 2)
		assert.Equal(t, 1, twse.calls())
		assert.Zero(t, tpex.calls())
		assert.Zero(t, yahoo.calls())
		assert.Equal(t, "2330", twse.symbols[0].Code)
	})

	t.Run("defaults to a thirty day window ending today", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		o := New(twse, tpex, yahoo, clock)

		o.Fetch(ctx, "2330", nil, nil)

		require.Equal(t, 1, twse.calls())
		w := twse.windows[0]
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), w.End)
		assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), w.Start)
	})

	t.Run("empty primary falls back and the fallback wins entirely", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		yahoo.result = fetcher.OK(fetcher.SourceYahoo, series("2330.TWO", 100, 101, 102))
		o := New(twse, tpex, yahoo, clock)

		out := o.Fetch(ctx, "2330.TW", nil, nil)

		assert.Equal(t, fetcher.SourceYahoo, out.Source)
		require.Len(t, out.Series, 3)
		assert.Equal(t, "2330.TW", out.Series[0].Symbol, "series is stamped with the storage key")
		assert.Len(t, out.Attempts, 2)
	})

	t.Run("failed primary is treated like empty", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		tpex.result = fetcher.Failed(fetcher.SourceTPEx, errors.New("connection reset"))
		yahoo.result = fetcher.OK(fetcher.SourceYahoo, series("6488.TWO", 450))
		o := New(twse, tpex, yahoo, clock)

		out := o.Fetch(ctx, "6488.TWO", nil, nil)

		assert.Equal(t, fetcher.SourceYahoo, out.Source)
		assert.Zero(t, twse.calls())
	})

	t.Run("index only uses the fallback", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		yahoo.result = fetcher.OK(fetcher.SourceYahoo, series("^TWII", 21000))
		o := New(twse, tpex, yahoo, clock)

		out := o.Fetch(ctx, "^TWII", nil, nil)

		assert.Equal(t, fetcher.SourceYahoo, out.Source)
		assert.Zero(t, twse.calls())
		assert.Zero(t, tpex.calls())
	})

	t.Run("all sources empty is a zero row outcome", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		o := New(twse, tpex, yahoo, clock)

		out := o.Fetch(ctx, "2330", nil, nil)

		assert.True(t, out.Empty())
		assert.Empty(t, out.Source)
		assert.Len(t, out.Attempts, 2)
	})

	t.Run("inverted window fetches nothing", func(t *testing.T) {
		twse, tpex, yahoo := newFakes()
		o := New(twse, tpex, yahoo, clock)
		start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

		out := o.Fetch(ctx, "2330", &start, &end)

		assert.True(t, out.Empty())
		assert.Zero(t, twse.calls())
	})
}
