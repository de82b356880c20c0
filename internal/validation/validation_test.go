package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/twstock-service/internal/models"
)

func point(close float64) models.PricePoint {
	return models.PricePoint{
		Symbol:    "2330.TW",
		TradeDate: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		Open:      decimal.NewNullDecimal(decimal.NewFromFloat(close)),
		High:      decimal.NewNullDecimal(decimal.NewFromFloat(close)),
		Low:       decimal.NewNullDecimal(decimal.NewFromFloat(close)),
		Close:     decimal.NewFromFloat(close),
		Volume:    1000,
	}
}

func TestCheckPriceBounds(t *testing.T) {
	t.Run("close 29999 is retained", func(t *testing.T) {
		assert.NoError(t, CheckPriceBounds(point(29999)))
	})

	t.Run("close 31000 is dropped", func(t *testing.T) {
		err := CheckPriceBounds(point(31000))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("bound is exclusive", func(t *testing.T) {
		assert.Error(t, CheckPriceBounds(point(30000)))
	})

	t.Run("any out of bound field rejects the point", func(t *testing.T) {
		p := point(500)
		p.High = decimal.NewNullDecimal(decimal.NewFromInt(30500))
		assert.Error(t, CheckPriceBounds(p))
	})

	t.Run("missing open high low are allowed", func(t *testing.T) {
		p := point(500)
		p.Open, p.High, p.Low = decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{}
		assert.NoError(t, CheckPriceBounds(p))
	})

	t.Run("zero close is rejected", func(t *testing.T) {
		assert.Error(t, CheckPriceBounds(point(0)))
	})
}

func TestParseDecimal(t *testing.T) {
	d, ok, err := ParseDecimal("close", "1,234.50")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(d))

	_, ok, err = ParseDecimal("close", "--")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseDecimal("close", "12a")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "close")
}

func TestParseVolume(t *testing.T) {
	v, err := ParseVolume("25,123,456")
	require.NoError(t, err)
	assert.Equal(t, int64(25123456), v)

	v, err = ParseVolume("--")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = ParseVolume("1200.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), v)

	_, err = ParseVolume("lots")
	assert.Error(t, err)
}

func TestCheckIndexBounds(t *testing.T) {
	assert.NoError(t, CheckIndexBounds(decimal.NewFromInt(20000)))
	assert.NoError(t, CheckIndexBounds(decimal.NewFromInt(1000)))
	assert.Error(t, CheckIndexBounds(decimal.NewFromInt(999)))
	assert.Error(t, CheckIndexBounds(decimal.NewFromInt(30001)))
}

func TestCheckIndexPoint(t *testing.T) {
	bar := func(open, high, low, close int64) models.PricePoint {
		return models.PricePoint{
			Symbol: "^TWII",
			Open:   decimal.NewNullDecimal(decimal.NewFromInt(open)),
			High:   decimal.NewNullDecimal(decimal.NewFromInt(high)),
			Low:    decimal.NewNullDecimal(decimal.NewFromInt(low)),
			Close:  decimal.NewFromInt(close),
		}
	}

	assert.NoError(t, CheckIndexPoint(bar(20000, 20100, 19900, 20050)))
	assert.Error(t, CheckIndexPoint(bar(20000, 31000, 19900, 20050)), "high above bound")
	assert.Error(t, CheckIndexPoint(bar(20000, 20100, 900, 20050)), "low below bound")
	assert.Error(t, CheckIndexPoint(bar(20000, 20100, 19900, 999)), "close below bound")

	missing := models.PricePoint{Symbol: "^TWII", Close: decimal.NewFromInt(20050)}
	assert.NoError(t, CheckIndexPoint(missing), "absent open/high/low are not checked")
}
