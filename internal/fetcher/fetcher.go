// Package fetcher retrieves daily OHLCV series from the Taiwan exchanges and
// the Yahoo chart API. Fetchers never return Go errors to their caller: every
// outcome is reported as a Result tagged OK, Empty or Failed.
package fetcher

import (
	"context"
	"fmt"

	"github.com/trogers1052/twstock-service/internal/models"
)

// Source names
const (
	SourceTWSE  = "twse"
	SourceTPEx  = "tpex"
	SourceYahoo = "yahoo"
)

// Fetcher retrieves the price series of one symbol over a window
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol models.Symbol, window models.FetchWindow) Result
}

// Status tags a fetch outcome
type Status int

// Status constants
const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the tagged outcome of one Fetch call
type Result struct {
	Source string
	Series models.PriceSeries
	Status Status
	Err    error
}

// OK builds a result from a series; an empty series yields an Empty result
func OK(source string, series models.PriceSeries) Result {
	if len(series) == 0 {
		return Empty(source)
	}
	return Result{Source: source, Series: series, Status: StatusOK}
}

// Empty builds a result for a source that had no rows for the window
func Empty(source string) Result {
	return Result{Source: source, Status: StatusEmpty}
}

// Failed builds a result for a source that could not be queried
func Failed(source string, err error) Result {
	return Result{Source: source, Status: StatusFailed, Err: err}
}

// Empty reports whether the result carries no rows. Failed results are empty.
func (r Result) Empty() bool {
	return r.Status != StatusOK || len(r.Series) == 0
}

// HTTPError is a non-200 upstream response
type HTTPError struct {
	StatusCode int
	Source     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d (url: %s)", e.Source, e.StatusCode, e.URL)
}
