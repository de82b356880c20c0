package pipeline

import (
	"time"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/models"
)

// ComputeWindow derives the incremental fetch window for a symbol. The start is
// the day after the watermark, clamped to [requestedStart, end]; with no
// watermark the requested start is used.
func ComputeWindow(symbol string, requestedStart, end time.Time, watermark *time.Time) models.FetchWindow {
	w := models.FetchWindow{
		Symbol: symbol,
		Start:  calendar.DateOnly(requestedStart),
		End:    calendar.DateOnly(end),
	}
	if watermark == nil || w.Empty() {
		return w
	}

	next := calendar.DateOnly(*watermark).AddDate(0, 0, 1)
	if next.After(w.End) {
		next = w.End
	}
	if next.After(w.Start) {
		w.Start = next
	}
	return w
}

func dateRange(dates []time.Time, requestedStart, requestedEnd time.Time) *models.DateRange {
	if len(dates) == 0 {
		return nil
	}
	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	return &models.DateRange{
		Start:            calendar.FormatDate(first),
		End:              calendar.FormatDate(last),
		RequestedStart:   calendar.FormatDate(requestedStart),
		RequestedEnd:     calendar.FormatDate(requestedEnd),
		TradingDaysCount: len(dates),
	}
}
