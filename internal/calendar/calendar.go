// Package calendar converts between the ROC (Minguo) calendar used by Taiwan
// government data sources and Gregorian dates, and iterates date windows.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trogers1052/twstock-service/internal/validation"
)

// ROCYearOffset is added to a ROC year to get the Gregorian year
const ROCYearOffset = 1911

// DateLayout is the canonical date format used across the service
const DateLayout = "2006-01-02"

// Taipei is the exchange's local time zone (no DST)
var Taipei = time.FixedZone("CST", 8*60*60)

// ROCToGregorian converts a ROC date such as "113/05/20" to 2024-05-20 UTC
func ROCToGregorian(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, invalidROC(s, "expected year/month/day")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, invalidROC(s, "non-numeric part")
		}
		nums[i] = n
	}

	year, month, day := nums[0]+ROCYearOffset, nums[1], nums[2]
	if nums[0] <= 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, invalidROC(s, "part out of range")
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, invalidROC(s, "day out of range")
	}
	return t, nil
}

func invalidROC(s, reason string) error {
	return &validation.ValidationError{Field: "ROC date", Value: s, Reason: reason}
}

// GregorianToROC formats a date as "113/05/20"
func GregorianToROC(t time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d", t.Year()-ROCYearOffset, int(t.Month()), t.Day())
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// TradeDateFromUnix maps an epoch timestamp to its trading date in Taipei
func TradeDateFromUnix(ts int64) time.Time {
	return DateOnly(time.Unix(ts, 0).In(Taipei))
}

// MonthStarts returns the first day of every calendar month touched by [start, end]
func MonthStarts(start, end time.Time) []time.Time {
	start, end = DateOnly(start), DateOnly(end)
	if end.Before(start) {
		return nil
	}
	var months []time.Time
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		months = append(months, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// Days returns every calendar day in [start, end]
func Days(start, end time.Time) []time.Time {
	start, end = DateOnly(start), DateOnly(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// WeekKey identifies an ISO-8601 week
type WeekKey struct {
	Year int
	Week int
}

// MonthKey identifies a calendar month
type MonthKey struct {
	Year  int
	Month time.Month
}

// WeekOf returns the ISO week containing t
func WeekOf(t time.Time) WeekKey {
	y, w := t.ISOWeek()
	return WeekKey{Year: y, Week: w}
}

// MonthOf returns the calendar month containing t
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}
