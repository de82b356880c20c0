package models

import "time"

// Update result statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// UpdateRequest is the caller-facing batch update command
type UpdateRequest struct {
	Symbols       []string   `json:"symbols"`
	StartDate     *time.Time `json:"-"`
	EndDate       *time.Time `json:"-"`
	UpdatePrices  bool       `json:"update_prices"`
	UpdateReturns bool       `json:"update_returns"`
}

// DateRange describes the dates actually written for a symbol
type DateRange struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	RequestedStart   string `json:"requested_start,omitempty"`
	RequestedEnd     string `json:"requested_end,omitempty"`
	TradingDaysCount int    `json:"trading_days_count"`
}

// SymbolResult is the per-symbol outcome of an update
type SymbolResult struct {
	Symbol           string     `json:"symbol"`
	Status           string     `json:"status"`
	Source           string     `json:"source,omitempty"`
	PriceRecords     int64      `json:"price_records"`
	DuplicateRecords int64      `json:"duplicate_records"`
	ReturnRecords    int64      `json:"return_records"`
	PriceDateRange   *DateRange `json:"price_date_range,omitempty"`
	ReturnDateRange  *DateRange `json:"return_date_range,omitempty"`
}

// SymbolError reports a symbol whose pipeline failed
type SymbolError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// UpdateSummary counts batch outcomes
type UpdateSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// UpdateResponse is the batch update result returned to callers
type UpdateResponse struct {
	RunID   string         `json:"run_id"`
	Results []SymbolResult `json:"results"`
	Errors  []SymbolError  `json:"errors"`
	Summary UpdateSummary  `json:"summary"`
}

// Statistics summarises the persisted tables
type Statistics struct {
	PriceRecords  int64      `json:"price_records"`
	ReturnRecords int64      `json:"return_records"`
	UniqueSymbols int64      `json:"unique_symbols"`
	EarliestDate  *time.Time `json:"earliest_date,omitempty"`
	LatestDate    *time.Time `json:"latest_date,omitempty"`
}
