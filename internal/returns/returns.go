// Package returns computes simple and compounded returns from a price series
// and lays weekly and monthly values onto the trading days they cover.
package returns

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

// Precision is the number of decimal places returns are rounded to
const Precision = 6

var one = decimal.NewFromInt(1)

type observation struct {
	date  time.Time
	close decimal.Decimal
}

// Compute returns period returns for the series at the given frequency.
// The series must be sorted and de-duplicated; fewer than two points yields nil.
//
// Daily output has one entry per input point, the first with nil values.
// Weekly and monthly output has one entry per period after the first, dated at
// the period's last observation. A period that follows one without trading days
// gets a nil return and does not move the cumulative value.
func Compute(series models.PriceSeries, freq models.Frequency) []models.PeriodReturn {
	if len(series) < 2 {
		return nil
	}

	obs := make([]observation, len(series))
	for i, p := range series {
		obs[i] = observation{date: p.TradeDate, close: p.Close}
	}

	// follows reports whether cur lies in the period right after prev
	follows := func(prev, cur time.Time) bool { return true }
	switch freq {
	case models.FrequencyWeekly:
		obs = resample(obs, func(t time.Time) interface{} { return calendar.WeekOf(t) })
		follows = func(prev, cur time.Time) bool {
			return calendar.WeekOf(prev.AddDate(0, 0, 7)) == calendar.WeekOf(cur)
		}
	case models.FrequencyMonthly:
		obs = resample(obs, func(t time.Time) interface{} { return calendar.MonthOf(t) })
		follows = func(prev, cur time.Time) bool {
			next := time.Date(prev.Year(), prev.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			return calendar.MonthOf(next) == calendar.MonthOf(cur)
		}
	case models.FrequencyDaily:
	default:
		return nil
	}

	out := make([]models.PeriodReturn, 0, len(obs))
	if freq == models.FrequencyDaily {
		out = append(out, models.PeriodReturn{Date: obs[0].date})
	}

	growth := 1.0
	for i := 1; i < len(obs); i++ {
		var r float64
		if obs[i-1].close.IsZero() || !follows(obs[i-1].date, obs[i].date) {
			// a period with no trading days leaves no base to compare against
			r = math.NaN()
		} else {
			r = obs[i].close.Div(obs[i-1].close).Sub(one).InexactFloat64()
		}
		if !math.IsNaN(r) {
			growth *= 1 + r
		}
		out = append(out, models.PeriodReturn{
			Date:       obs[i].date,
			Return:     sanitize(r),
			Cumulative: sanitize(growth - 1),
		})
	}
	return out
}

// resample keeps the last observation of each period
func resample(obs []observation, key func(time.Time) interface{}) []observation {
	var out []observation
	var last interface{}
	for _, o := range obs {
		k := key(o.date)
		if len(out) > 0 && k == last {
			out[len(out)-1] = o
			continue
		}
		out = append(out, o)
		last = k
	}
	return out
}

// Merge lays weekly and monthly returns onto each daily row by ISO week and
// calendar month. Days in a period without a value get nil.
func Merge(symbol string, daily, weekly, monthly []models.PeriodReturn) []models.ReturnPoint {
	byWeek := make(map[calendar.WeekKey]*float64, len(weekly))
	for _, w := range weekly {
		byWeek[calendar.WeekOf(w.Date)] = w.Return
	}
	byMonth := make(map[calendar.MonthKey]*float64, len(monthly))
	for _, m := range monthly {
		byMonth[calendar.MonthOf(m.Date)] = m.Return
	}

	out := make([]models.ReturnPoint, len(daily))
	for i, d := range daily {
		out[i] = models.ReturnPoint{
			Symbol:           symbol,
			TradeDate:        d.Date,
			DailyReturn:      d.Return,
			WeeklyReturn:     byWeek[calendar.WeekOf(d.Date)],
			MonthlyReturn:    byMonth[calendar.MonthOf(d.Date)],
			CumulativeReturn: d.Cumulative,
		}
	}
	return out
}

// Build computes all frequencies for a series and returns the rows to persist.
// The first trading day has no daily return and is omitted.
func Build(symbol string, series models.PriceSeries) []models.ReturnPoint {
	merged := Merge(symbol,
		Compute(series, models.FrequencyDaily),
		Compute(series, models.FrequencyWeekly),
		Compute(series, models.FrequencyMonthly),
	)

	out := make([]models.ReturnPoint, 0, len(merged))
	for _, p := range merged {
		if p.DailyReturn != nil {
			out = append(out, p)
		}
	}
	return out
}

// sanitize rounds v, mapping NaN and infinities to nil
func sanitize(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := Round(v)
	return &r
}

// Round rounds v to Precision decimal places
func Round(v float64) float64 {
	scale := math.Pow10(Precision)
	return math.Round(v*scale) / scale
}
