package calendar

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the wire format of session dates.
const DateLayout = "2006-01-02"

//go:embed holidays.yaml
var holidaysYAML []byte

// HolidayRange is an inclusive range of calendar dates on which the exchange
// is closed.
type HolidayRange struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
	Name  string `yaml:"name" json:"name"`
}

// Contains reports whether date (YYYY-MM-DD) falls inside the range. Lexical
// comparison is valid because dates are zero padded.
func (h HolidayRange) Contains(date string) bool {
	return date >= h.Start && date <= h.End
}

// holidays is the process-wide table, decoded on first use.
var holidays = sync.OnceValue(func() []HolidayRange {
	table, err := decodeHolidays(holidaysYAML)
	if err != nil {
		panic(fmt.Sprintf("calendar: embedded holiday table: %v", err))
	}
	return table
})

func decodeHolidays(data []byte) ([]HolidayRange, error) {
	var table []HolidayRange
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	for i, h := range table {
		for _, d := range []string{h.Start, h.End} {
			if _, err := time.Parse(DateLayout, d); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, &ParseError{Input: d, Err: err})
			}
		}
		if h.End < h.Start {
			return nil, fmt.Errorf("entry %d: end %s before start %s", i, h.End, h.Start)
		}
	}
	return table, nil
}

// Holidays returns a copy of the holiday table.
func Holidays() []HolidayRange {
	table := holidays()
	out := make([]HolidayRange, len(table))
	copy(out, table)
	return out
}

// IsHoliday reports whether the date part (first 10 characters) of date falls
// inside any holiday range.
func IsHoliday(date string) bool {
	date = datePart(date)
	for _, h := range holidays() {
		if h.Contains(date) {
			return true
		}
	}
	return false
}

// IsWeekend reports whether date is a Saturday or Sunday.
func IsWeekend(date string) (bool, error) {
	d, err := parseDate(datePart(date))
	if err != nil {
		return false, err
	}
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday, nil
}

// IsTradingDay reports whether the exchange holds a session on date.
func IsTradingDay(date string) (bool, error) {
	weekend, err := IsWeekend(date)
	if err != nil {
		return false, err
	}
	return !weekend && !IsHoliday(date), nil
}

// TodayIsTradingDay applies IsTradingDay to the current local date.
func TodayIsTradingDay() (bool, error) {
	return IsTradingDay(time.Now().In(Location()).Format(DateLayout))
}

// Direction selects which way ToTradingDay moves.
type Direction int

const (
	Backward Direction = -1
	Stay     Direction = 0
	Forward  Direction = 1
)

// ToTradingDay shifts t one calendar day at a time in dir until it lands on a
// trading day. Stay never moves t.
func ToTradingDay(t time.Time, dir Direction) time.Time {
	if dir == Stay {
		return t
	}
	for !isTradingTime(t) {
		t = t.AddDate(0, 0, int(dir))
	}
	return t
}

// isTradingTime is IsTradingDay for values that are already parsed.
func isTradingTime(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !IsHoliday(t.Format(DateLayout))
}

func datePart(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}
