// Package pipeline runs batch updates: watermark lookup, fetch, return
// computation and persistence for every requested symbol.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/database"
	"github.com/trogers1052/twstock-service/internal/models"
	"github.com/trogers1052/twstock-service/internal/orchestrator"
	"github.com/trogers1052/twstock-service/internal/returns"
)

// Defaults for batch updates
const (
	DefaultWorkers      = 4
	DefaultBatchTimeout = 30 * time.Minute
	DefaultSymbolLimit  = 50
)

// DefaultStartDate is the requested start used when a batch names none
var DefaultStartDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrBatchDeadline marks symbols left unprocessed when the batch timeout expired
var ErrBatchDeadline = errors.New("batch deadline exceeded before symbol was processed")

// Store is the persistence the updater needs
type Store interface {
	LatestPriceDate(ctx context.Context, symbol string) (*time.Time, error)
	UpsertPrices(ctx context.Context, points []models.PricePoint) (database.UpsertResult, error)
	UpsertReturns(ctx context.Context, points []models.ReturnPoint) (int64, error)
	GetPriceRange(ctx context.Context, symbol string, start, end *time.Time) (models.PriceSeries, error)
}

// PriceSource resolves symbols and fetches their series
type PriceSource interface {
	Resolve(ctx context.Context, raw string) orchestrator.Route
	FetchRoute(ctx context.Context, route orchestrator.Route, window models.FetchWindow) orchestrator.Outcome
}

// EventPublisher receives a notification for every symbol that had rows written
type EventPublisher interface {
	PublishPricesUpdated(ctx context.Context, event models.PricesUpdatedEvent) error
}

// Updater processes update batches with a bounded worker pool
type Updater struct {
	store        Store
	source       PriceSource
	catalog      *catalog.Cache
	publisher    EventPublisher
	workers      int
	batchTimeout time.Duration
	defaultStart time.Time
	symbolLimit  int
	now          func() time.Time
	logger       arbor.ILogger

	locksMu sync.Mutex
	locks   map[string]*symbolLock
}

// Option configures an Updater
type Option func(*Updater)

// WithWorkers sets the number of symbols processed concurrently
func WithWorkers(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithBatchTimeout sets the deadline for a whole batch
func WithBatchTimeout(d time.Duration) Option {
	return func(u *Updater) {
		if d > 0 {
			u.batchTimeout = d
		}
	}
}

// WithCatalog supplies the symbols used when a batch names none
func WithCatalog(c *catalog.Cache) Option {
	return func(u *Updater) {
		u.catalog = c
	}
}

// WithPublisher enables PRICES_UPDATED events
func WithPublisher(p EventPublisher) Option {
	return func(u *Updater) {
		u.publisher = p
	}
}

// WithDefaultStart overrides DefaultStartDate
func WithDefaultStart(t time.Time) Option {
	return func(u *Updater) {
		if !t.IsZero() {
			u.defaultStart = calendar.DateOnly(t)
		}
	}
}

// WithSymbolLimit overrides DefaultSymbolLimit
func WithSymbolLimit(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.symbolLimit = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(u *Updater) {
		u.logger = common.OrSilent(logger)
	}
}

// NewUpdater creates an updater over a store and a price source
func NewUpdater(store Store, source PriceSource, opts ...Option) *Updater {
	u := &Updater{
		store:        store,
		source:       source,
		workers:      DefaultWorkers,
		batchTimeout: DefaultBatchTimeout,
		defaultStart: DefaultStartDate,
		symbolLimit:  DefaultSymbolLimit,
		now:          time.Now,
		logger:       common.NewSilentLogger(),
		locks:        make(map[string]*symbolLock),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type outcome struct {
	result *models.SymbolResult
	err    error
}

// Update runs one batch. A failing symbol is reported in Errors and never
// stops the others.
func (u *Updater) Update(ctx context.Context, req models.UpdateRequest) models.UpdateResponse {
	runID := uuid.NewString()
	resp := models.UpdateResponse{
		RunID:   runID,
		Results: []models.SymbolResult{},
		Errors:  []models.SymbolError{},
	}

	symbols := u.symbols(ctx, req.Symbols)
	resp.Summary.Total = len(symbols)
	if len(symbols) == 0 {
		return resp
	}

	start := u.defaultStart
	if req.StartDate != nil {
		start = calendar.DateOnly(*req.StartDate)
	}
	end := calendar.DateOnly(u.now().In(calendar.Taipei))
	if req.EndDate != nil {
		end = calendar.DateOnly(*req.EndDate)
	}

	u.logger.Info().
		Str("run_id", runID).
		Int("symbols", len(symbols)).
		Str("start", calendar.FormatDate(start)).
		Str("end", calendar.FormatDate(end)).
		Bool("prices", req.UpdatePrices).
		Bool("returns", req.UpdateReturns).
		Msg("Starting update batch")

	batchCtx, cancel := context.WithTimeout(ctx, u.batchTimeout)
	defer cancel()

	outcomes := make([]outcome, len(symbols))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < minInt(u.workers, len(symbols)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if batchCtx.Err() != nil {
					outcomes[i] = outcome{err: ErrBatchDeadline}
					continue
				}
				res, err := u.processSymbol(batchCtx, runID, symbols[i], start, end, req)
				if err != nil && batchCtx.Err() != nil && !errors.Is(err, ErrBatchDeadline) {
					err = fmt.Errorf("%w: %v", ErrBatchDeadline, err)
				}
				outcomes[i] = outcome{result: res, err: err}
			}
		}()
	}
	for i := range symbols {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			u.logger.Error().
				Str("run_id", runID).
				Str("symbol", symbols[i]).
				Err(o.err).
				Msg("Symbol update failed")
			resp.Errors = append(resp.Errors, models.SymbolError{Symbol: symbols[i], Error: o.err.Error()})
			continue
		}
		resp.Results = append(resp.Results, *o.result)
	}
	resp.Summary.Success = len(resp.Results)
	resp.Summary.Failed = len(resp.Errors)

	u.logger.Info().
		Str("run_id", runID).
		Int("success", resp.Summary.Success).
		Int("failed", resp.Summary.Failed).
		Msg("Update batch finished")
	return resp
}

// symbols returns the requested list, or the head of the catalog when empty
func (u *Updater) symbols(ctx context.Context, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if u.catalog == nil {
		u.logger.Warn().Msg("No symbols requested and no catalog configured")
		return nil
	}
	entries, err := u.catalog.GetOrRefresh(ctx, u.now())
	if err != nil {
		u.logger.Warn().Err(err).Msg("Catalog unavailable, nothing to update")
		return nil
	}
	return catalog.Symbols(entries, u.symbolLimit)
}

// processSymbol runs watermark → fetch → write for one symbol under its lock
func (u *Updater) processSymbol(ctx context.Context, runID, raw string, start, end time.Time, req models.UpdateRequest) (*models.SymbolResult, error) {
	route := u.source.Resolve(ctx, raw)
	unlock := u.lock(route.Key)
	defer unlock()

	if ctx.Err() != nil {
		return nil, ErrBatchDeadline
	}

	result := &models.SymbolResult{Symbol: route.Key, Status: models.StatusSuccess}

	if req.UpdatePrices {
		watermark, err := u.store.LatestPriceDate(ctx, route.Key)
		if err != nil {
			return nil, err
		}
		window := ComputeWindow(route.Key, start, end, watermark)

		fetched := u.source.FetchRoute(ctx, route, window)
		if fetched.Empty() {
			if ctx.Err() != nil {
				return nil, ErrBatchDeadline
			}
			u.logger.Warn().
				Str("symbol", route.Key).
				Str("start", calendar.FormatDate(window.Start)).
				Str("end", calendar.FormatDate(window.End)).
				Int("sources_tried", len(fetched.Attempts)).
				Msg("No source returned prices")
			result.Status = models.StatusPartial
		} else {
			written, err := u.store.UpsertPrices(ctx, fetched.Series)
			if err != nil {
				return nil, fmt.Errorf("failed to store prices for %s from %s: %w", route.Key, fetched.Source, err)
			}
			result.Source = fetched.Source
			result.PriceRecords = written.New()
			result.DuplicateRecords = written.Duplicates
			result.PriceDateRange = dateRange(fetched.Series.Dates(), start, end)
		}
	}

	if req.UpdateReturns {
		series, err := u.store.GetPriceRange(ctx, route.Key, &start, &end)
		if err != nil {
			return nil, err
		}
		rows := returns.Build(route.Key, series)
		if len(rows) > 0 {
			n, err := u.store.UpsertReturns(ctx, rows)
			if err != nil {
				return nil, fmt.Errorf("failed to store returns for %s: %w", route.Key, err)
			}
			result.ReturnRecords = n

			dates := make([]time.Time, len(rows))
			for i, r := range rows {
				dates[i] = r.TradeDate
			}
			result.ReturnDateRange = dateRange(dates, start, end)
		}
	}

	u.publish(ctx, runID, result)
	return result, nil
}

func (u *Updater) publish(ctx context.Context, runID string, r *models.SymbolResult) {
	if u.publisher == nil || (r.PriceRecords == 0 && r.DuplicateRecords == 0 && r.ReturnRecords == 0) {
		return
	}
	event := models.PricesUpdatedEvent{
		EventType:     models.EventPricesUpdated,
		RunID:         runID,
		Symbol:        r.Symbol,
		Source:        r.Source,
		PriceRecords:  r.PriceRecords,
		ReturnRecords: r.ReturnRecords,
		Timestamp:     u.now(),
	}
	if r.PriceDateRange != nil {
		event.StartDate = r.PriceDateRange.Start
		event.EndDate = r.PriceDateRange.End
	}
	if err := u.publisher.PublishPricesUpdated(ctx, event); err != nil {
		u.logger.Warn().Str("symbol", r.Symbol).Err(err).Msg("Failed to publish prices updated event")
	}
}

// symbolLock serialises work on one storage key; refs counts holders and waiters
type symbolLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the key's lock and returns its release. The entry is dropped
// once nobody holds or waits for it.
func (u *Updater) lock(symbol string) func() {
	u.locksMu.Lock()
	l, ok := u.locks[symbol]
	if !ok {
		l = &symbolLock{}
		u.locks[symbol] = l
	}
	l.refs++
	u.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, symbol)
		}
		u.locksMu.Unlock()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
