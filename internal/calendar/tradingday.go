// Package calendar answers which dates the exchange trades on and performs
// session-aware date arithmetic for day, week and intraday minute periods.
package calendar

import (
	"fmt"
	"time"
)

// Session hours, local time. The session is continuous.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 15
	CloseMinute = 0
)

// SessionLength is the duration of one continuous session.
const SessionLength = (CloseHour*60 + CloseMinute - OpenHour*60 - OpenMinute) * time.Minute

// TradingDay is a session cursor: an instant in the configured location tagged
// with a Period. Day cursors sit at midnight of a trading day, Week cursors at
// midnight of the Monday starting their week, and Minute cursors at the start
// of an n-minute window inside the [open, close) span of a trading day.
// Stepping past the close lands on the next session's open. CloseTime is the
// only minute cursor outside that span; it marks the boundary and is not meant
// to be stepped from.
//
// TradingDay is a value type; every method returns a new value.
type TradingDay struct {
	period Period
	t      time.Time
}

// Parse reads YYYY-MM-DD as a Day cursor, or YYYY-MM-DD HH:MM[:SS] as a
// one-minute cursor. A date that is not a trading day snaps back to the
// previous session. A time before the open moves to the open, a time at or
// after the close to the session's last minute, and seconds are dropped.
func Parse(s string) (TradingDay, error) {
	t, hasTime, err := parseDateTime(s)
	if err != nil {
		return TradingDay{}, err
	}
	if hasTime {
		return TradingDay{period: Minutes(1), t: sessionFloor(t, time.Minute)}, nil
	}
	return TradingDay{period: Day, t: ToTradingDay(t, Backward)}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) TradingDay {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Trading returns the cursor for day, or the latest session when day is empty.
func Trading(day string) (TradingDay, error) {
	if day == "" {
		return Latest(), nil
	}
	d, err := Parse(day)
	if err != nil {
		return TradingDay{}, fmt.Errorf("invalid trading day: %w", err)
	}
	return d, nil
}

// At wraps t without checking it against the calendar. It is meant for dates
// that already came from a session, such as stored bar dates.
func At(t time.Time, p Period) TradingDay {
	return TradingDay{period: Minutes(1), t: t.In(Location())}.WithPeriod(p)
}

// Latest returns today's session, or the previous one when today's session
// has not opened yet.
func Latest() TradingDay {
	return LatestAt(time.Now())
}

// LatestAt is Latest evaluated at now.
func LatestAt(now time.Time) TradingDay {
	now = now.In(Location())
	latest := TradingDay{period: Day, t: ToTradingDay(midnight(now), Backward)}
	if now.Before(latest.OpenTime().t) {
		latest = latest.Previous()
	}
	return latest
}

// Period returns the granularity the cursor steps by.
func (d TradingDay) Period() Period { return d.period }

// Time returns the underlying instant.
func (d TradingDay) Time() time.Time { return d.t }

// Date returns the session date as YYYY-MM-DD.
func (d TradingDay) Date() string { return d.t.Format(DateLayout) }

// IsZero reports whether d is the zero cursor.
func (d TradingDay) IsZero() bool { return d.t.IsZero() }

// String renders day and week cursors as YYYY-MM-DD and minute cursors as
// YYYY-MM-DD HH:MM:SS.
func (d TradingDay) String() string {
	if d.period.IsMinute() {
		return d.t.Format(secondLayout)
	}
	return d.t.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d TradingDay) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TradingDay) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Compare orders cursors by instant.
func (d TradingDay) Compare(o TradingDay) int { return d.t.Compare(o.t) }

func (d TradingDay) Before(o TradingDay) bool { return d.t.Before(o.t) }

func (d TradingDay) After(o TradingDay) bool { return d.t.After(o.t) }

// Equal reports whether both cursors have the same period and instant.
func (d TradingDay) Equal(o TradingDay) bool {
	return d.period == o.period && d.t.Equal(o.t)
}

// WithPeriod re-tags the cursor. Switching to Week moves the date to that
// week's Monday and Day drops the time of day. Minute moves the instant to the
// start of its window, counted from the open; day and week cursors become the
// session open.
func (d TradingDay) WithPeriod(p Period) TradingDay {
	switch p.Kind {
	case KindWeek:
		return TradingDay{period: p, t: weekStart(d.t)}
	case KindMinute:
		return TradingDay{period: p, t: sessionFloor(d.t, p.Duration())}
	default:
		return TradingDay{period: Day, t: midnight(d.t)}
	}
}

// Previous steps back one calendar day and snaps to the nearest earlier session.
func (d TradingDay) Previous() TradingDay {
	return TradingDay{period: d.period, t: ToTradingDay(d.t.AddDate(0, 0, -1), Backward)}
}

// Next steps forward one calendar day and snaps to the nearest later session.
func (d TradingDay) Next() TradingDay {
	return TradingDay{period: d.period, t: ToTradingDay(d.t.AddDate(0, 0, 1), Forward)}
}

// Add moves the cursor n steps of its period: sessions for Day, calendar
// weeks for Week and n-minute windows for Minute, rolling across session
// boundaries. Negative n moves backwards.
func (d TradingDay) Add(n int) TradingDay {
	if n < 0 {
		return d.Sub(-n)
	}
	if n == 0 {
		return d
	}
	switch d.period.Kind {
	case KindWeek:
		return TradingDay{period: d.period, t: weekStart(d.t).AddDate(0, 0, 7*n)}
	case KindMinute:
		return TradingDay{period: d.period, t: forward(d.t, time.Duration(n)*d.period.Duration())}
	default:
		out := d
		for i := 0; i < n; i++ {
			out = out.Next()
		}
		return out
	}
}

// Sub moves the cursor n steps backwards; see Add.
func (d TradingDay) Sub(n int) TradingDay {
	if n < 0 {
		return d.Add(-n)
	}
	if n == 0 {
		return d
	}
	switch d.period.Kind {
	case KindWeek:
		return TradingDay{period: d.period, t: weekStart(d.t).AddDate(0, 0, -7*n)}
	case KindMinute:
		return TradingDay{period: d.period, t: backward(d.t, time.Duration(n)*d.period.Duration())}
	default:
		out := d
		for i := 0; i < n; i++ {
			out = out.Previous()
		}
		return out
	}
}

// AddDuration converts dur into whole steps of the cursor's period and adds
// them. Durations shorter than one step leave the cursor unchanged.
func (d TradingDay) AddDuration(dur time.Duration) TradingDay {
	return d.Add(int(dur / d.period.Duration()))
}

// SubDuration is AddDuration in the other direction.
func (d TradingDay) SubDuration(dur time.Duration) TradingDay {
	return d.Sub(int(dur / d.period.Duration()))
}

// Between counts the Next steps separating d and o, in either order.
func (d TradingDay) Between(o TradingDay) int {
	lo, hi := d, o
	switch d.Compare(o) {
	case 0:
		return 0
	case 1:
		lo, hi = o, d
	}
	n := 0
	for lo.Before(hi) {
		lo = lo.Next()
		n++
	}
	return n
}

// Range lists the sessions from d through end as day cursors, both ends
// included. It returns nil when end is before d.
func (d TradingDay) Range(end TradingDay) []TradingDay {
	cur := TradingDay{period: Day, t: ToTradingDay(midnight(d.t), Forward)}
	last := midnight(end.t)
	var days []TradingDay
	for !cur.t.After(last) {
		days = append(days, cur)
		cur = cur.Next()
	}
	return days
}

// WeekStartDay returns the Monday of the cursor's week, whether or not the
// exchange trades that day.
func (d TradingDay) WeekStartDay() TradingDay {
	return TradingDay{period: d.boundaryPeriod(), t: weekStart(d.t)}
}

// WeekEndDay returns the Sunday of the cursor's week.
func (d TradingDay) WeekEndDay() TradingDay {
	return TradingDay{period: d.boundaryPeriod(), t: weekStart(d.t).AddDate(0, 0, 6)}
}

// MonthStartDay returns the first calendar day of the cursor's month.
func (d TradingDay) MonthStartDay() TradingDay {
	y, m, _ := d.t.Date()
	return TradingDay{period: d.boundaryPeriod(), t: time.Date(y, m, 1, 0, 0, 0, 0, d.t.Location())}
}

// MonthEndDay returns the last calendar day of the cursor's month.
func (d TradingDay) MonthEndDay() TradingDay {
	y, m, _ := d.t.Date()
	first := time.Date(y, m+1, 1, 0, 0, 0, 0, d.t.Location())
	return TradingDay{period: d.boundaryPeriod(), t: first.AddDate(0, 0, -1)}
}

// OpenTime returns the session open of the cursor's date as a minute cursor.
func (d TradingDay) OpenTime() TradingDay {
	return TradingDay{period: d.minutePeriod(), t: clock(d.t, OpenHour, OpenMinute)}
}

// CloseTime returns the session close of the cursor's date as a minute cursor.
// Stepping from it behaves as stepping from the next session's open.
func (d TradingDay) CloseTime() TradingDay {
	return TradingDay{period: d.minutePeriod(), t: clock(d.t, CloseHour, CloseMinute)}
}

// IsClosedAt reports whether the cursor's session had closed by now.
func (d TradingDay) IsClosedAt(now time.Time) bool {
	return d.CloseTime().t.Before(now)
}

// IsNowClosed is IsClosedAt(time.Now()).
func (d TradingDay) IsNowClosed() bool {
	return d.IsClosedAt(time.Now())
}

func (d TradingDay) boundaryPeriod() Period {
	if d.period.IsMinute() {
		return Day
	}
	return d.period
}

func (d TradingDay) minutePeriod() Period {
	if d.period.IsMinute() {
		return d.period
	}
	return Minutes(1)
}

func weekStart(t time.Time) time.Time {
	day := midnight(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// sessionFloor moves t onto the start of the n-wide window holding it. Times
// before the open go to the open; times at or after the close, and times on
// non-trading days, go to the last window of the session at or before t.
func sessionFloor(t time.Time, n time.Duration) time.Time {
	if !isTradingTime(t) {
		t = clock(ToTradingDay(t, Backward), CloseHour, CloseMinute)
	}
	open := clock(t, OpenHour, OpenMinute)
	if t.Before(open) {
		return open
	}
	if end := clock(t, CloseHour, CloseMinute); !t.Before(end) {
		t = end.Add(-time.Nanosecond)
	}
	return open.Add(t.Sub(open) / n * n)
}

func nextOpen(t time.Time) time.Time {
	return clock(ToTradingDay(t.AddDate(0, 0, 1), Forward), OpenHour, OpenMinute)
}

func previousClose(t time.Time) time.Time {
	return clock(ToTradingDay(t.AddDate(0, 0, -1), Backward), CloseHour, CloseMinute)
}

// forward walks delta of session time from t, continuing at the next open
// whenever the close is reached.
func forward(t time.Time, delta time.Duration) time.Time {
	switch {
	case !isTradingTime(t):
		t = clock(ToTradingDay(t, Forward), OpenHour, OpenMinute)
	case t.Before(clock(t, OpenHour, OpenMinute)):
		t = clock(t, OpenHour, OpenMinute)
	case !t.Before(clock(t, CloseHour, CloseMinute)):
		t = nextOpen(t)
	}
	for {
		room := clock(t, CloseHour, CloseMinute).Sub(t)
		if delta < room {
			return t.Add(delta)
		}
		delta -= room
		t = nextOpen(t)
	}
}

// backward walks delta of session time back from t, continuing at the
// previous close whenever the open is passed.
func backward(t time.Time, delta time.Duration) time.Time {
	switch {
	case !isTradingTime(t):
		t = clock(ToTradingDay(t, Backward), CloseHour, CloseMinute)
	case t.Before(clock(t, OpenHour, OpenMinute)):
		t = previousClose(t)
	case t.After(clock(t, CloseHour, CloseMinute)):
		t = clock(t, CloseHour, CloseMinute)
	}
	for {
		room := t.Sub(clock(t, OpenHour, OpenMinute))
		if delta <= room {
			return t.Add(-delta)
		}
		delta -= room
		t = previousClose(t)
	}
}
