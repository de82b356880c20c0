package models

import "time"

// Event type constants
const (
	EventPricesUpdated   = "PRICES_UPDATED"
	EventUpdateRequested = "UPDATE_REQUESTED"
)

// PricesUpdatedEvent is published after a symbol's rows were persisted
type PricesUpdatedEvent struct {
	EventType     string    `json:"event_type"`
	RunID         string    `json:"run_id"`
	Symbol        string    `json:"symbol"`
	Source        string    `json:"source,omitempty"`
	PriceRecords  int64     `json:"price_records"`
	ReturnRecords int64     `json:"return_records"`
	StartDate     string    `json:"start_date,omitempty"`
	EndDate       string    `json:"end_date,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// UpdateRequestedEvent asks the service to run an update batch
type UpdateRequestedEvent struct {
	EventType     string   `json:"event_type"`
	Symbols       []string `json:"symbols"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	UpdatePrices  *bool    `json:"update_prices,omitempty"`
	UpdateReturns *bool    `json:"update_returns,omitempty"`
}
