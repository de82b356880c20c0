package models

import "time"

// Frequency selects the resampling period for return computation
type Frequency string

// Frequency constants
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// PeriodReturn is the simple and cumulative return at the end of one period
type PeriodReturn struct {
	Date       time.Time `json:"date"`
	Return     *float64  `json:"return"`
	Cumulative *float64  `json:"cumulative_return"`
}

// ReturnPoint is the per-trading-day row persisted to stock_returns.
// Weekly and monthly values are those of the enclosing period.
type ReturnPoint struct {
	Symbol           string    `json:"symbol"`
	TradeDate        time.Time `json:"date"`
	DailyReturn      *float64  `json:"daily_return"`
	WeeklyReturn     *float64  `json:"weekly_return"`
	MonthlyReturn    *float64  `json:"monthly_return"`
	CumulativeReturn *float64  `json:"cumulative_return"`
}
