package resample

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kline/internal/calendar"
	"kline/internal/domain"
)

// DataIntegrityError reports a session inside a requested range that has no
// minute data while later sessions do.
type DataIntegrityError struct {
	Symbol string
	Day    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("missing minute data for %s on %s", e.Symbol, e.Day)
}

// SessionLoader reads the minute bars of one session. It returns nil bars and
// a nil error when the session has no data.
type SessionLoader interface {
	ReadSessionBars(ctx context.Context, symbol string, day calendar.TradingDay) ([]domain.Bar, error)
}

// AssembleSessions loads the minute bars of days concurrently, at most
// workers at a time, and concatenates them in session order. Sessions missing
// at either end of the range are dropped. A missing session between two
// sessions that have data fails the whole call with *DataIntegrityError.
func AssembleSessions(ctx context.Context, loader SessionLoader, symbol string, days []calendar.TradingDay, workers int) ([]domain.Bar, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([][]domain.Bar, len(days))
	sem := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, day := range days {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}
			bars, err := loader.ReadSessionBars(gctx, symbol, day)
			if err != nil {
				return fmt.Errorf("loading %s %s: %w", symbol, day.Date(), err)
			}
			results[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	first, last := -1, -1
	for i, bars := range results {
		if len(bars) == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return nil, nil
	}

	var out []domain.Bar
	for i := first; i <= last; i++ {
		if len(results[i]) == 0 {
			return nil, &DataIntegrityError{Symbol: symbol, Day: days[i].Date()}
		}
		out = append(out, results[i]...)
	}
	return out, nil
}
