// Package gather pulls bars from another chart server into local storage.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/internal/series"
	"kline/pkg/kline"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run gathers once and returns when done or when ctx is cancelled.
	Run(ctx context.Context) error
}

// ChartSource returns charts by symbol.
type ChartSource interface {
	Chart(ctx context.Context, symbol string, period calendar.Period, end string, limit int) (*domain.Chart, error)
}

// RemoteSource is a ChartSource backed by another kline server.
type RemoteSource struct {
	Client *kline.Client
}

// Chart fetches the chart and checks the bars are in date order.
func (r RemoteSource) Chart(ctx context.Context, symbol string, period calendar.Period, end string, limit int) (*domain.Chart, error) {
	c, err := r.Client.Chart(ctx, symbol, period.String(), end, limit)
	if err != nil {
		return nil, err
	}
	p, err := calendar.ParsePeriod(c.Period)
	if err != nil {
		return nil, fmt.Errorf("remote chart %s: %w", symbol, err)
	}
	if p != period {
		return nil, fmt.Errorf("remote chart %s: got %v bars, want %v", symbol, p, period)
	}
	bars := make([]domain.Bar, len(c.Bars))
	for i, b := range c.Bars {
		bars[i] = domain.Bar(b)
	}
	return domain.NewChart(symbol, p, bars)
}

// Importer writes bars into local storage. *series.Service implements it.
type Importer interface {
	Import(ctx context.Context, symbol string, period calendar.Period, bars []domain.Bar) (int, error)
}

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var (
	_ Gatherer    = (*MirrorGatherer)(nil)
	_ ChartSource = RemoteSource{}
	_ Importer    = (*series.Service)(nil)
)

// MirrorGatherer copies the trailing bars of a symbol list from a remote
// chart server. Each symbol is fetched once per period in Periods; minute
// periods must match the local source period for the import to succeed.
type MirrorGatherer struct {
	src     ChartSource
	dst     Importer
	symbols []string
	periods []calendar.Period
	end     string
	limit   int
	workers int
	log     *slog.Logger
}

// MirrorOptions configures a MirrorGatherer.
type MirrorOptions struct {
	Periods []calendar.Period
	End     string // empty for the latest session
	Limit   int    // bars per symbol and period, 0 for the server default
	Workers int
}

// NewMirrorGatherer creates a MirrorGatherer.
func NewMirrorGatherer(src ChartSource, dst Importer, symbols []string, opts MirrorOptions, log *slog.Logger) *MirrorGatherer {
	periods := opts.Periods
	if len(periods) == 0 {
		periods = []calendar.Period{calendar.Day}
	}
	return &MirrorGatherer{
		src:     src,
		dst:     dst,
		symbols: symbols,
		periods: periods,
		end:     opts.End,
		limit:   opts.Limit,
		workers: max(opts.Workers, 1),
		log:     log,
	}
}

// Name returns the gatherer identifier.
func (g *MirrorGatherer) Name() string { return "mirror" }

// Run fetches and imports every symbol. A failing symbol is logged and
// skipped; Run reports how many failed once all are done.
func (g *MirrorGatherer) Run(ctx context.Context) error {
	var imported, failed atomic.Int64
	sem := make(chan struct{}, g.workers)

	eg, gctx := errgroup.WithContext(ctx)
	for _, sym := range g.symbols {
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, p := range g.periods {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, err := g.mirror(gctx, sym, p)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					g.log.Warn("mirror failed", "symbol", sym, "period", p, "error", err)
					failed.Add(1)
					continue
				}
				imported.Add(int64(n))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("mirror complete", "symbols", len(g.symbols), "bars", imported.Load(), "failed", failed.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("mirror: %d of %d fetches failed", n, int64(len(g.symbols)*len(g.periods)))
	}
	return nil
}

func (g *MirrorGatherer) mirror(ctx context.Context, symbol string, p calendar.Period) (int, error) {
	c, err := g.src.Chart(ctx, symbol, p, g.end, g.limit)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}
	if c.Len() == 0 {
		return 0, nil
	}
	return g.dst.Import(ctx, symbol, p, c.Bars)
}
