package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/twstock-service/internal/models"
)

// countingLoader returns entries or err and counts calls
type countingLoader struct {
	entries []models.CatalogEntry
	err     error
	calls   int
}

func (l *countingLoader) Load(context.Context) ([]models.CatalogEntry, error) {
	l.calls++
	return l.entries, l.err
}

func TestCache_GetOrRefresh(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

	t.Run("serves cached entries within the TTL", func(t *testing.T) {
		loader := &countingLoader{entries: []models.CatalogEntry{listed("2330.TW", "台積電")}}
		cache := NewCache(loader)

		_, err := cache.GetOrRefresh(ctx, t0)
		require.NoError(t, err)
		_, err = cache.GetOrRefresh(ctx, t0.Add(59*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, loader.calls)

		_, err = cache.GetOrRefresh(ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, loader.calls)
	})

	t.Run("keeps stale entries when a refresh fails", func(t *testing.T) {
		loader := &countingLoader{entries: []models.CatalogEntry{listed("2330.TW", "台積電")}}
		cache := NewCache(loader, WithTTL(time.Minute))

		_, err := cache.GetOrRefresh(ctx, t0)
		require.NoError(t, err)

		loader.entries, loader.err = nil, errors.New("upstream down")
		entries, err := cache.GetOrRefresh(ctx, t0.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("errors when nothing was ever loaded", func(t *testing.T) {
		cache := NewCache(&countingLoader{err: errors.New("upstream down")})
		_, err := cache.GetOrRefresh(ctx, t0)
		assert.Error(t, err)
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		loader := &countingLoader{entries: []models.CatalogEntry{listed("2330.TW", "台積電")}}
		cache := NewCache(loader)

		_, _ = cache.GetOrRefresh(ctx, t0)
		cache.Invalidate()
		_, _ = cache.GetOrRefresh(ctx, t0.Add(time.Second))
		assert.Equal(t, 2, loader.calls)
	})

	t.Run("filters warrants and duplicates", func(t *testing.T) {
		loader := &countingLoader{entries: []models.CatalogEntry{
			listed("2330.TW", "台積電"),
			listed("030001.TW", "台積電元大購01"),
			listed("03001P.TW", "元大牛熊證"),
			listed("2330.TW", "台積電權值股"),
		}}
		entries, err := NewCache(loader).GetOrRefresh(ctx, t0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "台積電", entries[0].Name)
	})
}

func TestLookup(t *testing.T) {
	entries, err := BackupLoader{}.Load(context.Background())
	require.NoError(t, err)

	e, ok := Lookup(entries, "6488")
	require.True(t, ok)
	assert.Equal(t, models.MarketOTC, e.Market)
	assert.Equal(t, "6488.TWO", e.Symbol)

	e, ok = Lookup(entries, "^TWII")
	require.True(t, ok)
	assert.Equal(t, models.MarketIndex, e.Market)

	_, ok = Lookup(entries, "233")
	assert.False(t, ok)
}

func TestChainLoader(t *testing.T) {
	first := &countingLoader{err: errors.New("db down")}
	second := &countingLoader{}
	third := &countingLoader{entries: []models.CatalogEntry{otc("6488.TWO", "環球晶")}}

	entries, err := NewChainLoader(nil, first, second, third).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	_, err = NewChainLoader(nil, first).Load(context.Background())
	assert.Error(t, err)
}

func TestSymbols(t *testing.T) {
	entries, _ := BackupLoader{}.Load(context.Background())
	assert.Equal(t, []string{"2330.TW", "2317.TW"}, Symbols(entries, 2))
	assert.Len(t, Symbols(entries, 0), len(entries))
}
