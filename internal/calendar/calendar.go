package calendar

import "time"

// TradingCalendar provides market-hours awareness on top of the holiday table
// and session hours.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a TradingCalendar in the configured location.
func NewTradingCalendar() *TradingCalendar {
	return &TradingCalendar{loc: Location()}
}

// IsMarketOpen returns whether a session is running at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	t = t.In(tc.loc)
	if !isTradingTime(t) {
		return false
	}
	return !t.Before(clock(t, OpenHour, OpenMinute)) && t.Before(clock(t, CloseHour, CloseMinute))
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	t = t.In(tc.loc)
	if isTradingTime(t) && !t.After(clock(t, OpenHour, OpenMinute)) {
		return clock(t, OpenHour, OpenMinute)
	}
	return nextOpen(t)
}

// NextClose returns the next session close at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	t = t.In(tc.loc)
	if isTradingTime(t) && !t.After(clock(t, CloseHour, CloseMinute)) {
		return clock(t, CloseHour, CloseMinute)
	}
	return clock(ToTradingDay(t.AddDate(0, 0, 1), Forward), CloseHour, CloseMinute)
}

// Session returns the most recent session that had opened by t.
func (tc *TradingCalendar) Session(t time.Time) TradingDay {
	return LatestAt(t.In(tc.loc))
}
