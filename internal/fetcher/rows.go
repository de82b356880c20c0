package fetcher

import (
	"time"

	"github.com/trogers1052/twstock-service/internal/models"
	"github.com/trogers1052/twstock-service/internal/validation"
)

// rawQuote holds the text fields of one upstream table row
type rawQuote struct {
	open, high, low, close, volume string
}

// parsePoint converts a table row into a validated point. ok is false without
// an error when the close is an upstream "no value" sentinel.
func parsePoint(ticker string, date time.Time, q rawQuote) (models.PricePoint, bool, error) {
	closePrice, ok, err := validation.ParseDecimal("close", q.close)
	if err != nil || !ok {
		return models.PricePoint{}, false, err
	}

	p := models.PricePoint{Symbol: ticker, TradeDate: date, Close: closePrice}
	if p.Open, err = validation.ParseNullDecimal("open", q.open); err != nil {
		return models.PricePoint{}, false, err
	}
	if p.High, err = validation.ParseNullDecimal("high", q.high); err != nil {
		return models.PricePoint{}, false, err
	}
	if p.Low, err = validation.ParseNullDecimal("low", q.low); err != nil {
		return models.PricePoint{}, false, err
	}
	if p.Volume, err = validation.ParseVolume(q.volume); err != nil {
		return models.PricePoint{}, false, err
	}
	if err := validation.CheckPriceBounds(p); err != nil {
		return models.PricePoint{}, false, err
	}
	return p, true, nil
}
