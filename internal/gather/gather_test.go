package gather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/pkg/kline"
)

type fakeSource struct {
	fail map[string]bool
}

func (f *fakeSource) Chart(_ context.Context, symbol string, period calendar.Period, _ string, _ int) (*domain.Chart, error) {
	if f.fail[symbol] {
		return nil, errors.New("unavailable")
	}
	return &domain.Chart{Symbol: symbol, Period: period, Bars: []domain.Bar{
		{Date: "2023-07-05", Open: 1, High: 1, Low: 1, Close: 1},
		{Date: "2023-07-06", Open: 1, High: 1, Low: 1, Close: 1},
	}}, nil
}

type fakeImporter struct {
	mu  sync.Mutex
	got map[string]int
}

func (f *fakeImporter) Import(_ context.Context, symbol string, period calendar.Period, bars []domain.Bar) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got[symbol+"/"+period.String()] += len(bars)
	return len(bars), nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMirrorGathererName(t *testing.T) {
	g := NewMirrorGatherer(&fakeSource{}, &fakeImporter{}, nil, MirrorOptions{}, discard())
	if got := g.Name(); got != "mirror" {
		t.Errorf("Name() = %q, want %q", got, "mirror")
	}
	if len(g.periods) != 1 || g.periods[0] != calendar.Day {
		t.Errorf("default periods = %v, want [day]", g.periods)
	}
}

func TestMirrorGathererRun(t *testing.T) {
	imp := &fakeImporter{got: map[string]int{}}
	g := NewMirrorGatherer(&fakeSource{}, imp, []string{"600444", "000001"}, MirrorOptions{
		Periods: []calendar.Period{calendar.Day, calendar.Minutes(1)},
		Workers: 2,
	}, discard())

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, key := range []string{"600444/day", "600444/1m", "000001/day", "000001/1m"} {
		if imp.got[key] != 2 {
			t.Errorf("%s imported %d bars, want 2", key, imp.got[key])
		}
	}
}

func TestMirrorGathererPartialFailure(t *testing.T) {
	imp := &fakeImporter{got: map[string]int{}}
	g := NewMirrorGatherer(&fakeSource{fail: map[string]bool{"000001": true}}, imp,
		[]string{"600444", "000001"}, MirrorOptions{}, discard())

	if err := g.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with a failing symbol")
	}
	if imp.got["600444/day"] != 2 {
		t.Errorf("healthy symbol imported %d bars, want 2", imp.got["600444/day"])
	}
}

func TestMirrorGathererCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewMirrorGatherer(&fakeSource{}, &fakeImporter{got: map[string]int{}}, []string{"600444"}, MirrorOptions{}, discard())
	if err := g.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestRemoteSource(t *testing.T) {
	body := `{"symbol":"600444","period":"5m","bars":[` +
		`{"date":"2023-07-06 09:30:00","open":1,"high":2,"low":1,"close":2,"volume":10},` +
		`{"date":"2023-07-06 09:35:00","open":2,"high":3,"low":2,"close":3,"volume":5,"yesterday":2}]}`
	var periods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		periods = append(periods, r.URL.Query().Get("period"))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	src := RemoteSource{Client: kline.NewClient(srv.URL)}
	c, err := src.Chart(context.Background(), "600444", calendar.Minutes(5), "", 0)
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if c.Period != calendar.Minutes(5) || c.Len() != 2 || c.Bars[1].Yesterday != 2 {
		t.Errorf("chart = %+v", c)
	}

	if _, err := src.Chart(context.Background(), "600444", calendar.Day, "", 0); err == nil {
		t.Error("Chart accepted 5m bars for a day request")
	}
	if len(periods) != 2 || periods[0] != "5m" || periods[1] != "day" {
		t.Errorf("requested periods = %v", periods)
	}
}
