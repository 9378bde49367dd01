package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned by ParsePeriod for unrecognised input.
var ErrInvalidPeriod = errors.New("invalid period")

// Kind is the granularity tag of a Period.
type Kind uint8

const (
	KindDay Kind = iota + 1
	KindWeek
	KindMinute
)

// Period is the bar granularity a cursor or chart is expressed in. N is the
// window size in minutes for KindMinute and unused otherwise.
type Period struct {
	Kind Kind
	N    int
}

var (
	Day  = Period{Kind: KindDay}
	Week = Period{Kind: KindWeek}
)

// Minutes returns the n-minute period. n below 1 is treated as 1.
func Minutes(n int) Period {
	if n < 1 {
		n = 1
	}
	return Period{Kind: KindMinute, N: n}
}

// IsMinute reports whether p is an intraday period.
func (p Period) IsMinute() bool { return p.Kind == KindMinute }

// Duration returns the wall-clock length of one step of p.
func (p Period) Duration() time.Duration {
	switch p.Kind {
	case KindWeek:
		return 7 * 24 * time.Hour
	case KindMinute:
		return time.Duration(p.N) * time.Minute
	default:
		return 24 * time.Hour
	}
}

// Compare orders periods Day < Week < Minute(n), minutes by window size.
func (p Period) Compare(o Period) int {
	if p.Kind != o.Kind {
		if p.Kind < o.Kind {
			return -1
		}
		return 1
	}
	if p.Kind != KindMinute || p.N == o.N {
		return 0
	}
	if p.N < o.N {
		return -1
	}
	return 1
}

// Covers reports whether bars of src can be merged into bars of p.
func (p Period) Covers(src Period) bool {
	switch p.Kind {
	case KindWeek:
		return src.Kind == KindDay || src.Kind == KindWeek || src.Kind == KindMinute
	case KindDay:
		return src.Kind == KindDay || src.Kind == KindMinute
	case KindMinute:
		return src.Kind == KindMinute && p.N%src.N == 0
	}
	return false
}

func (p Period) String() string {
	switch p.Kind {
	case KindDay:
		return "day"
	case KindWeek:
		return "week"
	case KindMinute:
		return strconv.Itoa(p.N) + "m"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(b []byte) error {
	v, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePeriod accepts "day", "d", "1d", "week", "w", "1w" and minute windows
// written as "5", "5m", "5min" or "5Min".
func ParsePeriod(s string) (Period, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "day", "d", "1d", "daily":
		return Day, nil
	case "week", "w", "1w", "weekly":
		return Week, nil
	}
	v = strings.TrimSuffix(strings.TrimSuffix(v, "min"), "m")
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Minutes(n), nil
}
