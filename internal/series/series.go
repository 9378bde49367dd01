// Package series builds charts for a symbol from stored bars: it bounds the
// request, loads day bars or assembles minute sessions, and resamples to the
// requested period.
package series

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/internal/resample"
	"kline/internal/store"
)

// Options bounds chart requests.
type Options struct {
	SourceMinutes int // window size of stored minute bars
	DefaultLimit  int
	MaxLimit      int
	Workers       int
}

// Request asks for the last Limit bars of Symbol at Period, ending at End
// (inclusive). An empty End means the latest session; Limit 0 means the
// default.
type Request struct {
	Symbol string
	Period calendar.Period
	End    string
	Limit  int
}

// Service builds charts from a BarStore.
type Service struct {
	store store.BarStore
	opts  Options
	log   *slog.Logger
}

// New creates a Service.
func New(bs store.BarStore, opts Options, log *slog.Logger) *Service {
	if opts.SourceMinutes < 1 {
		opts.SourceMinutes = 1
	}
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 240
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Service{store: bs, opts: opts, log: log}
}

// SourcePeriod is the period stored minute bars are kept in.
func (s *Service) SourcePeriod() calendar.Period {
	return calendar.Minutes(s.opts.SourceMinutes)
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		return s.opts.DefaultLimit
	}
	return min(n, s.opts.MaxLimit)
}

// Chart builds the chart described by req.
func (s *Service) Chart(ctx context.Context, req Request) (*domain.Chart, error) {
	end, err := calendar.Trading(req.End)
	if err != nil {
		return nil, err
	}
	limit := s.limit(req.Limit)

	var c *domain.Chart
	if req.Period.IsMinute() {
		c, err = s.minuteChart(ctx, req.Symbol, req.Period, end, limit)
	} else {
		c, err = s.dayChart(ctx, req.Symbol, req.Period, end, limit)
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug("chart built", "symbol", req.Symbol, "period", req.Period, "end", end, "bars", c.Len())
	return c, nil
}

func (s *Service) dayChart(ctx context.Context, symbol string, period calendar.Period, end calendar.TradingDay, limit int) (*domain.Chart, error) {
	endDay := end.WithPeriod(calendar.Day)

	// One extra session so the first kept bar has a previous close.
	start := endDay.Sub(limit)
	if period == calendar.Week {
		start = endDay.WithPeriod(calendar.Week).Sub(limit)
	}

	bars, err := s.store.ReadDailyBars(ctx, symbol, start.Time(), endDay.Time())
	if err != nil {
		return nil, fmt.Errorf("reading day bars for %s: %w", symbol, err)
	}
	c, err := domain.NewChart(symbol, calendar.Day, bars)
	if err != nil {
		return nil, fmt.Errorf("day bars for %s: %w", symbol, err)
	}
	c.FillYesterday()

	if period == calendar.Day {
		c.KeepLast(limit)
		return c, nil
	}
	return resample.ResampleChart(c, period, limit)
}

func (s *Service) minuteChart(ctx context.Context, symbol string, period calendar.Period, end calendar.TradingDay, limit int) (*domain.Chart, error) {
	src := s.SourcePeriod()
	if !period.Covers(src) {
		return nil, fmt.Errorf("%w: %v from %v", resample.ErrUnsupported, period, src)
	}

	perSession := int((calendar.SessionLength + period.Duration() - 1) / period.Duration())
	sessions := (limit + perSession - 1) / perSession
	endDay := end.WithPeriod(calendar.Day)
	days := endDay.Sub(sessions - 1).Range(endDay)

	raw, err := resample.AssembleSessions(ctx, s.store, symbol, days, s.opts.Workers)
	if err != nil {
		return nil, err
	}
	// A date-time End in the session's last minute keeps the closing bar.
	if end.Period().IsMinute() && end.Add(1).Date() == end.Date() {
		cut := end.String()
		i := len(raw)
		for i > 0 && raw[i-1].Date > cut {
			i--
		}
		raw = raw[:i]
	}

	bars, err := resample.Resample(raw, src, period, limit)
	if err != nil {
		return nil, err
	}
	c, err := domain.NewChart(symbol, period, bars)
	if err != nil {
		return nil, fmt.Errorf("minute bars for %s: %w", symbol, err)
	}
	c.FillYesterday()
	return c, nil
}

// Import validates bars and writes them to the store. Day bars are merged
// into the yearly files; minute bars, which must be in the source period,
// are split by session. It returns the number of bars written.
func (s *Service) Import(ctx context.Context, symbol string, period calendar.Period, bars []domain.Bar) (int, error) {
	valid := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.IsValid() {
			valid = append(valid, b)
		}
	}
	c, err := domain.NewChart(symbol, period, valid)
	if err != nil {
		return 0, fmt.Errorf("importing %s: %w", symbol, err)
	}

	switch {
	case period == calendar.Day:
		c.FillYesterday()
		if err := s.store.WriteDailyBars(ctx, symbol, c.Bars); err != nil {
			return 0, err
		}
	case period == s.SourcePeriod():
		if err := s.importSessions(ctx, symbol, c.Bars); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: cannot import %v bars", resample.ErrUnsupported, period)
	}

	s.log.Info("bars imported", "symbol", symbol, "period", period, "count", c.Len(), "dropped", len(bars)-len(valid))
	return c.Len(), nil
}

func (s *Service) importSessions(ctx context.Context, symbol string, bars []domain.Bar) error {
	for len(bars) > 0 {
		date := bars[0].Date[:len(calendar.DateLayout)]
		n := 1
		for n < len(bars) && strings.HasPrefix(bars[n].Date, date) {
			n++
		}
		t, err := calendar.ParseInstant(date)
		if err != nil {
			return err
		}
		if err := s.store.WriteSessionBars(ctx, symbol, calendar.At(t, calendar.Day), bars[:n]); err != nil {
			return err
		}
		bars = bars[n:]
	}
	return nil
}
