// Package resample merges bars of a fine period into bars of a coarser one
// and assembles multi-session minute series.
package resample

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"kline/internal/calendar"
	"kline/internal/domain"
)

// ErrUnsupported is returned when the target period cannot be built from the
// source period.
var ErrUnsupported = errors.New("unsupported resample")

const minuteLayout = "2006-01-02 15:04:05"

// BucketKey returns the date of the to-period bar that a bar dated date
// belongs to. Week keys are the Monday of the calendar week, whether or not
// that Monday is a session. Minute keys are the start of the window counted
// from the session open; a bar stamped at the close joins the last window.
func BucketKey(date string, to calendar.Period) (string, error) {
	t, err := calendar.ParseInstant(date)
	if err != nil {
		return "", err
	}
	switch to.Kind {
	case calendar.KindWeek:
		return calendar.At(t, calendar.Week).Date(), nil
	case calendar.KindDay:
		return t.Format(calendar.DateLayout), nil
	case calendar.KindMinute:
		return minuteBucket(t, to.N).Format(minuteLayout), nil
	}
	return "", fmt.Errorf("%w: target %v", ErrUnsupported, to)
}

func minuteBucket(t time.Time, n int) time.Time {
	return calendar.At(t, calendar.Minutes(n)).Time()
}

// Resample merges bars of period from, already in date order, into bars of
// period to. Each output bar is dated by its bucket key and keeps the open
// and yesterday close of its first source bar. When limit is positive only
// the trailing limit output bars are returned. The input is not modified.
func Resample(bars []domain.Bar, from, to calendar.Period, limit int) ([]domain.Bar, error) {
	if !to.Covers(from) {
		return nil, fmt.Errorf("%w: %v to %v", ErrUnsupported, from, to)
	}

	var out []domain.Bar
	if from == to {
		out = slices.Clone(bars)
	} else {
		out = make([]domain.Bar, 0, len(bars)/2+1)
		for _, b := range bars {
			key, err := BucketKey(b.Date, to)
			if err != nil {
				return nil, fmt.Errorf("bucketing %s: %w", b.Date, err)
			}
			n := len(out)
			if n > 0 && out[n-1].Date == key {
				out[n-1].Merge(b)
				continue
			}
			if n > 0 && key < out[n-1].Date {
				return nil, fmt.Errorf("%w: %s after %s", domain.ErrOutOfOrder, b.Date, out[n-1].Date)
			}
			b.Date = key
			out = append(out, b)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ResampleChart is Resample over a chart, returning a new chart in period to.
func ResampleChart(c *domain.Chart, to calendar.Period, limit int) (*domain.Chart, error) {
	bars, err := Resample(c.Bars, c.Period, to, limit)
	if err != nil {
		return nil, err
	}
	return &domain.Chart{Symbol: c.Symbol, Period: to, Bars: bars}, nil
}
