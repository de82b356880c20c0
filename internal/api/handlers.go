package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// Store is the read side of the database used by the handlers
type Store interface {
	ResolveSymbol(ctx context.Context, raw string) (string, error)
	GetPriceRange(ctx context.Context, symbol string, start, end *time.Time) (models.PriceSeries, error)
	GetReturnRange(ctx context.Context, symbol string, start, end *time.Time) ([]models.ReturnPoint, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
	Ping(ctx context.Context) error
}

// Updater runs update batches
type Updater interface {
	Update(ctx context.Context, req models.UpdateRequest) models.UpdateResponse
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store   Store
	updater Updater
	catalog *catalog.Cache
	logger  arbor.ILogger
}

// NewHandler creates a new Handler
func NewHandler(store Store, updater Updater, cat *catalog.Cache, logger arbor.ILogger) *Handler {
	return &Handler{
		store:   store,
		updater: updater,
		catalog: cat,
		logger:  common.OrSilent(logger),
	}
}

type updateRequest struct {
	Symbols       []string `json:"symbols"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	UpdatePrices  *bool    `json:"update_prices"`
	UpdateReturns *bool    `json:"update_returns"`
}

// Update handles POST /update
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := models.UpdateRequest{Symbols: body.Symbols, UpdatePrices: true, UpdateReturns: true}
	if body.UpdatePrices != nil {
		req.UpdatePrices = *body.UpdatePrices
	}
	if body.UpdateReturns != nil {
		req.UpdateReturns = *body.UpdateReturns
	}

	var err error
	if req.StartDate, err = optionalDate(body.StartDate); err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	if req.EndDate, err = optionalDate(body.EndDate); err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, h.updater.Update(r.Context(), req))
}

type dateRanges struct {
	Requested map[string]string `json:"requested"`
	Actual    *models.DateRange `json:"actual,omitempty"`
}

type seriesResponse struct {
	Symbol    string      `json:"symbol"`
	Data      interface{} `json:"data"`
	Count     int         `json:"count"`
	DateRange dateRanges  `json:"date_range"`
}

// GetPrices handles GET /stocks/{symbol}/prices
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	symbol, start, end, ok := h.seriesParams(w, r)
	if !ok {
		return
	}

	series, err := h.store.GetPriceRange(r.Context(), symbol, start, end)
	if err != nil {
		h.logger.Error().Str("symbol", symbol).Err(err).Msg("Failed to read prices")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if series == nil {
		series = models.PriceSeries{}
	}

	respondJSON(w, http.StatusOK, seriesResponse{
		Symbol:    symbol,
		Data:      series,
		Count:     len(series),
		DateRange: newDateRanges(r, series.Dates()),
	})
}

// GetReturns handles GET /stocks/{symbol}/returns
func (h *Handler) GetReturns(w http.ResponseWriter, r *http.Request) {
	symbol, start, end, ok := h.seriesParams(w, r)
	if !ok {
		return
	}

	rows, err := h.store.GetReturnRange(r.Context(), symbol, start, end)
	if err != nil {
		h.logger.Error().Str("symbol", symbol).Err(err).Msg("Failed to read returns")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.ReturnPoint{}
	}

	dates := make([]time.Time, len(rows))
	for i, p := range rows {
		dates[i] = p.TradeDate
	}
	respondJSON(w, http.StatusOK, seriesResponse{
		Symbol:    symbol,
		Data:      rows,
		Count:     len(rows),
		DateRange: newDateRanges(r, dates),
	})
}

// seriesParams resolves the path symbol and parses start_date/end_date
func (h *Handler) seriesParams(w http.ResponseWriter, r *http.Request) (string, *time.Time, *time.Time, bool) {
	start, err := optionalDate(r.URL.Query().Get("start_date"))
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return "", nil, nil, false
	}
	end, err := optionalDate(r.URL.Query().Get("end_date"))
	if err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return "", nil, nil, false
	}

	symbol, err := h.store.ResolveSymbol(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return "", nil, nil, false
	}
	return symbol, start, end, true
}

// GetSymbols handles GET /symbols; refresh=true drops the cached catalog first
func (h *Handler) GetSymbols(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "symbol catalog not configured", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		h.catalog.Invalidate()
	}

	entries, err := h.catalog.GetOrRefresh(r.Context(), time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  entries,
		"count": len(entries),
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	body := map[string]interface{}{
		"status":   "healthy",
		"database": "connected",
	}
	if stats, err := h.store.Statistics(r.Context()); err == nil {
		body["statistics"] = stats
	} else {
		h.logger.Warn().Err(err).Msg("Failed to read statistics")
	}
	respondJSON(w, http.StatusOK, body)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := calendar.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func newDateRanges(r *http.Request, dates []time.Time) dateRanges {
	out := dateRanges{Requested: map[string]string{
		"start": r.URL.Query().Get("start_date"),
		"end":   r.URL.Query().Get("end_date"),
	}}
	if len(dates) > 0 {
		out.Actual = &models.DateRange{
			Start:            calendar.FormatDate(dates[0]),
			End:              calendar.FormatDate(dates[len(dates)-1]),
			TradingDaysCount: len(dates),
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
