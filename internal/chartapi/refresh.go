package chartapi

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"kline/internal/calendar"
)

// Refresher clears the chart cache on a cron schedule, skipping days the
// exchange is closed.
type Refresher struct {
	cron    *cron.Cron
	clear   func()
	trading func() (bool, error)
	log     *slog.Logger
}

// NewRefresher creates a Refresher that calls clear. Schedules use the
// six-field cron syntax with seconds.
func NewRefresher(clear func(), log *slog.Logger) *Refresher {
	return &Refresher{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(calendar.Location())),
		clear:   clear,
		trading: calendar.TodayIsTradingDay,
		log:     log,
	}
}

// Register adds one refresh job per schedule.
func (r *Refresher) Register(specs ...string) error {
	for _, spec := range specs {
		if _, err := r.cron.AddFunc(spec, r.run); err != nil {
			return fmt.Errorf("register refresh %q: %w", spec, err)
		}
	}
	return nil
}

// Start starts the scheduler in its own goroutine.
func (r *Refresher) Start() {
	r.cron.Start()
	r.log.Info("refresher started", "jobs", len(r.cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("refresher stopped")
}

func (r *Refresher) run() {
	ok, err := r.trading()
	if err != nil {
		r.log.Error("checking trading day", "error", err)
		return
	}
	if !ok {
		r.log.Debug("not a trading day, cache kept")
		return
	}
	r.clear()
}
