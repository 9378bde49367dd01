package calendar

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ParseError reports a date or date-time string that could not be parsed.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid date %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

var location atomic.Pointer[time.Location]

// SetLocation configures the zone every session date is interpreted in. It
// is meant to be called once at startup.
func SetLocation(loc *time.Location) {
	if loc != nil {
		location.Store(loc)
	}
}

// LoadLocation resolves name (e.g. "Asia/Shanghai") and installs it with
// SetLocation. An empty name keeps the process local zone.
func LoadLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", name, err)
	}
	SetLocation(loc)
	return nil
}

// Location returns the configured zone, time.Local until SetLocation is called.
func Location() *time.Location {
	if loc := location.Load(); loc != nil {
		return loc
	}
	return time.Local
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, Location())
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Err: err}
	}
	return t, nil
}

const (
	minuteLayout = "2006-01-02 15:04"
	secondLayout = "2006-01-02 15:04:05"
)

// parseDateTime accepts YYYY-MM-DD, YYYY-MM-DD HH:MM and YYYY-MM-DD HH:MM:SS.
// The boolean is false for date-only input.
func parseDateTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if len(s) <= len(DateLayout) {
		t, err := parseDate(s)
		return t, false, err
	}
	layout := secondLayout
	if len(s) == len(minuteLayout) {
		layout = minuteLayout
	}
	t, err := time.ParseInLocation(layout, s, Location())
	if err != nil {
		return time.Time{}, false, &ParseError{Input: s, Err: err}
	}
	return t, true, nil
}

// ParseInstant reads a bar date (YYYY-MM-DD or YYYY-MM-DD HH:MM[:SS]) in the
// configured zone. Unlike Parse it does not snap to a trading day.
func ParseInstant(s string) (time.Time, error) {
	t, _, err := parseDateTime(s)
	return t, err
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func clock(t time.Time, hour, min int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, min, 0, 0, t.Location())
}
