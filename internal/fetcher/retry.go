package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy controls how a single upstream request is retried
type RetryPolicy struct {
	MaxAttempts int

	// ServerErrorWait applies to HTTP 500 responses when RetryServerErrors is set
	ServerErrorWait   time.Duration
	RetryServerErrors bool

	// TimeoutWait applies to client timeouts, which are always retried
	TimeoutWait time.Duration

	// ErrorWait applies to transport and decode errors when RetryOtherErrors is set
	ErrorWait        time.Duration
	RetryOtherErrors bool
}

// TWSEPolicy retries 500s after 2s and timeouts after 3s; anything else aborts the month
var TWSEPolicy = RetryPolicy{
	MaxAttempts:       3,
	ServerErrorWait:   2 * time.Second,
	RetryServerErrors: true,
	TimeoutWait:       3 * time.Second,
}

// TPExPolicy retries timeouts and transport errors after 2s; non-200 aborts the day
var TPExPolicy = RetryPolicy{
	MaxAttempts:      3,
	TimeoutWait:      2 * time.Second,
	ErrorWait:        2 * time.Second,
	RetryOtherErrors: true,
}

// YahooPolicy makes a single attempt; the strategy chain provides the fallbacks
var YahooPolicy = RetryPolicy{MaxAttempts: 1}

type attemptKind int

const (
	attemptTimeout attemptKind = iota
	attemptServerError
	attemptStatus
	attemptOther
)

// wait returns how long to pause before the next attempt and whether to retry at all
func (p RetryPolicy) wait(kind attemptKind) (time.Duration, bool) {
	switch kind {
	case attemptTimeout:
		return p.TimeoutWait, true
	case attemptServerError:
		return p.ServerErrorWait, p.RetryServerErrors
	case attemptOther:
		return p.ErrorWait, p.RetryOtherErrors
	}
	return 0, false
}

func classifyStatus(code int) attemptKind {
	if code == http.StatusInternalServerError {
		return attemptServerError
	}
	return attemptStatus
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Sleeper pauses between attempts and must return early when ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewSourceLimiter returns a limiter allowing one request per interval.
// Share one limiter per upstream so concurrent workers respect the aggregate rate.
func NewSourceLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
