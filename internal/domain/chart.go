package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"kline/internal/calendar"
)

// ErrOutOfOrder is returned when a bar would break the strictly increasing
// date order of a Chart.
var ErrOutOfOrder = errors.New("bar out of order")

// Chart is an ordered series of bars for one instrument at one Period.
// Dates are unique and strictly increasing.
type Chart struct {
	Symbol string          `json:"symbol"`
	Period calendar.Period `json:"period"`
	Bars   []Bar           `json:"bars"`
}

// NewChart builds a chart from bars already sorted by date. The slice is
// copied.
func NewChart(symbol string, period calendar.Period, bars []Bar) (*Chart, error) {
	c := &Chart{Symbol: symbol, Period: period, Bars: make([]Bar, 0, len(bars))}
	for _, b := range bars {
		if err := c.Append(b); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Chart) Len() int { return len(c.Bars) }

// Last returns the trailing bar.
func (c *Chart) Last() (Bar, bool) {
	if len(c.Bars) == 0 {
		return Bar{}, false
	}
	return c.Bars[len(c.Bars)-1], true
}

// Append adds b after the trailing bar.
func (c *Chart) Append(b Bar) error {
	if last, ok := c.Last(); ok && b.Date <= last.Date {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, b.Date, last.Date)
	}
	c.Bars = append(c.Bars, b)
	return nil
}

// ReplaceLast drops the trailing bar, if any, and appends b. It is used to
// refresh a session bar that is still forming. Dates stay strictly
// increasing: when b does not sort after the bar before the trailing one,
// ReplaceLast returns ErrOutOfOrder and leaves the chart unchanged. b may
// carry a later date than the bar it replaces.
func (c *Chart) ReplaceLast(b Bar) error {
	if len(c.Bars) == 0 {
		c.Bars = append(c.Bars, b)
		return nil
	}
	if n := len(c.Bars); n > 1 && b.Date <= c.Bars[n-2].Date {
		return fmt.Errorf("%w: %s after %s", ErrOutOfOrder, b.Date, c.Bars[n-2].Date)
	}
	c.Bars[len(c.Bars)-1] = b
	return nil
}

func (c *Chart) index(date string) (int, bool) {
	return slices.BinarySearchFunc(c.Bars, date, func(b Bar, d string) int {
		return strings.Compare(b.Date, d)
	})
}

// Search returns the bar dated date.
func (c *Chart) Search(date string) (Bar, bool) {
	i, ok := c.index(date)
	if !ok {
		return Bar{}, false
	}
	return c.Bars[i], true
}

// TruncateAt removes the bar dated end and everything after it, returning
// the removed boundary bar. On a miss the chart is left untouched.
func (c *Chart) TruncateAt(end string) (Bar, bool) {
	i, ok := c.index(end)
	if !ok {
		return Bar{}, false
	}
	removed := c.Bars[i]
	clear(c.Bars[i:])
	c.Bars = c.Bars[:i]
	return removed, true
}

// SkipTo discards every bar before start. On a miss the chart is left
// untouched.
func (c *Chart) SkipTo(start string) bool {
	i, ok := c.index(start)
	if !ok {
		return false
	}
	c.Bars = slices.Clone(c.Bars[i:])
	return true
}

// KeepLast retains only the trailing n bars. Negative n is a no-op.
func (c *Chart) KeepLast(n int) {
	if n < 0 || len(c.Bars) <= n {
		return
	}
	c.Bars = slices.Clone(c.Bars[len(c.Bars)-n:])
}

// Dates lists the bar dates in order.
func (c *Chart) Dates() []string {
	dates := make([]string, len(c.Bars))
	for i, b := range c.Bars {
		dates[i] = b.Date
	}
	return dates
}

func (c *Chart) Clone() *Chart {
	return &Chart{Symbol: c.Symbol, Period: c.Period, Bars: slices.Clone(c.Bars)}
}

// FillYesterday sets each missing Yesterday from the preceding bar's close.
// The first bar keeps whatever the producer gave it.
func (c *Chart) FillYesterday() {
	for i := 1; i < len(c.Bars); i++ {
		if c.Bars[i].Yesterday == 0 {
			c.Bars[i].Yesterday = c.Bars[i-1].Close
		}
	}
}
