package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/trogers1052/twstock-service/internal/models"
)

// sleepRecorder replaces real sleeps so retry tests run instantly
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func testOptions(baseURL string, rec *sleepRecorder) []Option {
	return []Option{
		WithBaseURL(baseURL),
		WithRequestInterval(0),
		WithSleeper(rec.sleep),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func window(symbol string, start, end time.Time) models.FetchWindow {
	return models.FetchWindow{Symbol: symbol, Start: start, End: end}
}
