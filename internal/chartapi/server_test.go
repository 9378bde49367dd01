package chartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/internal/resample"
	"kline/internal/series"
)

func TestMain(m *testing.M) {
	calendar.SetLocation(time.FixedZone("CST", 8*3600))
	os.Exit(m.Run())
}

type fakeCharter struct {
	calls int
	last  series.Request
	err   error
}

func (f *fakeCharter) Chart(_ context.Context, req series.Request) (*domain.Chart, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Chart{Symbol: req.Symbol, Period: req.Period, Bars: []domain.Bar{
		{Date: "2023-07-06", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
	}}, nil
}

type fakeStocks struct{ list domain.Stocks }

func (f *fakeStocks) SaveStocks(_ context.Context, stocks domain.Stocks) error {
	f.list = append(f.list, stocks...)
	return nil
}

func (f *fakeStocks) ListStocks(context.Context) (domain.Stocks, error) { return f.list, nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestChartRoute(t *testing.T) {
	fc := &fakeCharter{}
	s := NewServer(fc, nil, "", discard())
	h := s.Handler()

	var c domain.Chart
	if code := get(t, h, "/api/chart/600444?period=5m&end=2023-07-06&limit=20", &c); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if c.Symbol != "600444" || c.Period != calendar.Minutes(5) || len(c.Bars) != 1 {
		t.Errorf("chart = %+v", c)
	}
	if want := (series.Request{Symbol: "600444", Period: calendar.Minutes(5), End: "2023-07-06", Limit: 20}); fc.last != want {
		t.Errorf("request = %+v, want %+v", fc.last, want)
	}

	// Repeated requests are served from the cache until it is cleared.
	get(t, h, "/api/chart/600444?period=5m&end=2023-07-06&limit=20", nil)
	if fc.calls != 1 {
		t.Errorf("charter called %d times, want 1", fc.calls)
	}
	s.ClearCache()
	get(t, h, "/api/chart/600444?period=5m&end=2023-07-06&limit=20", nil)
	if fc.calls != 2 {
		t.Errorf("after ClearCache charter called %d times, want 2", fc.calls)
	}

	// Defaults to day bars.
	get(t, h, "/api/chart/000001", nil)
	if fc.last.Period != calendar.Day || fc.last.Limit != 0 {
		t.Errorf("default request = %+v", fc.last)
	}
}

func TestChartCacheFollowsSession(t *testing.T) {
	fc := &fakeCharter{}
	s := NewServer(fc, nil, "", discard())
	h := s.Handler()
	setNow := func(v string) {
		now, err := time.ParseInLocation(time.DateTime, v, calendar.Location())
		if err != nil {
			t.Fatal(err)
		}
		s.now = func() time.Time { return now }
	}

	// During the session the latest chart is rebuilt on every request.
	setNow("2023-07-06 10:00:00")
	for i := 0; i < 3; i++ {
		get(t, h, "/api/chart/600000?period=5m", nil)
	}
	if fc.calls != 3 {
		t.Errorf("open session: charter called %d times, want 3", fc.calls)
	}
	get(t, h, "/api/chart/600000?period=5m&end=2023-07-06%2010:00", nil)
	if fc.calls != 4 {
		t.Errorf("open session with today's end: charter called %d times, want 4", fc.calls)
	}

	// Past sessions are cached while the market is open.
	get(t, h, "/api/chart/600000?period=5m&end=2023-07-05", nil)
	get(t, h, "/api/chart/600000?period=5m&end=2023-07-05", nil)
	if fc.calls != 5 {
		t.Errorf("past session: charter called %d times, want 5", fc.calls)
	}

	// After the close the latest chart is cached, keyed by its session.
	setNow("2023-07-06 16:00:00")
	get(t, h, "/api/chart/600000?period=5m", nil)
	get(t, h, "/api/chart/600000?period=5m", nil)
	if fc.calls != 6 {
		t.Errorf("closed: charter called %d times, want 6", fc.calls)
	}
	setNow("2023-07-07 16:00:00")
	get(t, h, "/api/chart/600000?period=5m", nil)
	if fc.calls != 7 {
		t.Errorf("next session: charter called %d times, want 7", fc.calls)
	}

	if code := get(t, h, "/api/chart/600000?end=someday", nil); code != http.StatusBadRequest {
		t.Errorf("bad end: status = %d, want 400", code)
	}
}

func TestChartCacheBound(t *testing.T) {
	s := NewServer(&fakeCharter{}, nil, "", discard())
	h := s.Handler()
	for i := 1; i <= maxCachedCharts; i++ {
		get(t, h, fmt.Sprintf("/api/chart/600000?end=2023-07-05&limit=%d", i), nil)
	}
	if n := s.cached.Load(); n != maxCachedCharts {
		t.Fatalf("cached = %d, want %d", n, maxCachedCharts)
	}
	get(t, h, "/api/chart/600001?end=2023-07-05", nil)
	if n := s.cached.Load(); n != 0 {
		t.Errorf("cached = %d after overflow, want 0", n)
	}
}

func TestChartRouteErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad period", "/api/chart/600444?period=7x", nil, http.StatusBadRequest},
		{"bad limit", "/api/chart/600444?limit=-1", nil, http.StatusBadRequest},
		{"parse error", "/api/chart/600444", &calendar.ParseError{Input: "x", Err: errors.New("bad")}, http.StatusBadRequest},
		{"unsupported", "/api/chart/600444", resample.ErrUnsupported, http.StatusBadRequest},
		{"integrity", "/api/chart/600444", &resample.DataIntegrityError{Symbol: "600444", Day: "2023-07-05"}, http.StatusConflict},
		{"internal", "/api/chart/600444", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewServer(&fakeCharter{err: tt.err}, nil, "", discard()).Handler()
		if code := get(t, h, tt.path, nil); code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, code, tt.want)
		}
	}
}

func TestDayRoute(t *testing.T) {
	h := NewServer(&fakeCharter{}, nil, "", discard()).Handler()

	var d DayResponse
	if code := get(t, h, "/api/calendar/day/2023-10-01", &d); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	want := DayResponse{
		Date:       "2023-10-01",
		Trading:    false,
		Weekend:    true,
		Holiday:    true,
		Previous:   "2023-09-28",
		Next:       "2023-10-09",
		WeekStart:  "2023-09-25",
		WeekEnd:    "2023-10-01",
		MonthStart: "2023-10-01",
		MonthEnd:   "2023-10-31",
		Open:       "2023-10-01 09:30:00",
		Close:      "2023-10-01 15:00:00",
	}
	if d != want {
		t.Errorf("day view =\n  %+v\nwant\n  %+v", d, want)
	}

	if code := get(t, h, "/api/calendar/day/2023-13-01", nil); code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", code)
	}

	var latest DayResponse
	if code := get(t, h, "/api/calendar/latest", &latest); code != http.StatusOK || !latest.Trading {
		t.Errorf("latest = %d %+v", code, latest)
	}
}

func TestBetweenAndHolidaysRoutes(t *testing.T) {
	h := NewServer(&fakeCharter{}, nil, "", discard()).Handler()

	var b BetweenResponse
	if code := get(t, h, "/api/calendar/between?from=2023-09-28&to=2023-10-09", &b); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if b.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", b.Sessions)
	}
	if code := get(t, h, "/api/calendar/between?from=2023-09-28", nil); code != http.StatusBadRequest {
		t.Errorf("missing to: status = %d, want 400", code)
	}

	var hr HolidaysResponse
	if code := get(t, h, "/api/calendar/holidays", &hr); code != http.StatusOK || len(hr.Holidays) == 0 {
		t.Errorf("holidays = %d, %d ranges", code, len(hr.Holidays))
	}
}

func TestMarketRoute(t *testing.T) {
	tests := []struct {
		now  string
		want MarketResponse
	}{
		{"2023-09-28 14:00:00", MarketResponse{
			Now: "2023-09-28 14:00:00", Open: true, Session: "2023-09-28",
			NextOpen: "2023-10-09 09:30:00", NextClose: "2023-09-28 15:00:00",
		}},
		{"2023-10-01 10:00:00", MarketResponse{
			Now: "2023-10-01 10:00:00", Open: false, Session: "2023-09-28",
			NextOpen: "2023-10-09 09:30:00", NextClose: "2023-10-09 15:00:00",
		}},
		{"2023-10-09 08:00:00", MarketResponse{
			Now: "2023-10-09 08:00:00", Open: false, Session: "2023-09-28",
			NextOpen: "2023-10-09 09:30:00", NextClose: "2023-10-09 15:00:00",
		}},
	}
	for _, tt := range tests {
		now, err := time.ParseInLocation(time.DateTime, tt.now, calendar.Location())
		if err != nil {
			t.Fatal(err)
		}
		s := NewServer(&fakeCharter{}, nil, "", discard())
		s.now = func() time.Time { return now }

		var got MarketResponse
		if code := get(t, s.Handler(), "/api/calendar/market", &got); code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.now, code)
		}
		if got != tt.want {
			t.Errorf("%s: market = %+v, want %+v", tt.now, got, tt.want)
		}
	}
}

func TestStocksRoute(t *testing.T) {
	if code := get(t, NewServer(&fakeCharter{}, nil, "", discard()).Handler(), "/api/stocks", nil); code != http.StatusServiceUnavailable {
		t.Errorf("no stock store: status = %d, want 503", code)
	}

	fs := &fakeStocks{list: domain.Stocks{
		{Symbol: "000001", Name: "平安银行"},
		{Symbol: "600444", Name: "国机通用"},
	}}
	h := NewServer(&fakeCharter{}, fs, "", discard()).Handler()

	var all StocksResponse
	if code := get(t, h, "/api/stocks", &all); code != http.StatusOK || len(all.Stocks) != 2 {
		t.Errorf("all stocks = %d %+v", code, all)
	}
	var some StocksResponse
	get(t, h, "/api/stocks?q=600", &some)
	if len(some.Stocks) != 1 || some.Stocks[0].Symbol != "600444" {
		t.Errorf("q=600 = %+v", some)
	}
	var none StocksResponse
	get(t, h, "/api/stocks?q=zzz", &none)
	if none.Stocks == nil || len(none.Stocks) != 0 {
		t.Errorf("q=zzz = %+v, want an empty list", none)
	}
}

func TestAuth(t *testing.T) {
	h := NewServer(&fakeCharter{}, nil, "secret", discard()).Handler()

	if code := get(t, h, "/api/calendar/holidays", nil); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calendar/holidays", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}

	opt := httptest.NewRecorder()
	h.ServeHTTP(opt, httptest.NewRequest(http.MethodOptions, "/api/calendar/holidays", nil))
	if opt.Code != http.StatusNoContent {
		t.Errorf("preflight: status = %d, want 204", opt.Code)
	}
}

func TestRefresher(t *testing.T) {
	cleared := 0
	r := NewRefresher(func() { cleared++ }, discard())

	r.trading = func() (bool, error) { return false, nil }
	r.run()
	if cleared != 0 {
		t.Errorf("cleared on a closed day")
	}

	r.trading = func() (bool, error) { return false, errors.New("boom") }
	r.run()
	if cleared != 0 {
		t.Errorf("cleared after a calendar error")
	}

	r.trading = func() (bool, error) { return true, nil }
	r.run()
	if cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared)
	}

	if err := r.Register("5 30 9 * * 1-5", "5 0 15 * * 1-5"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n := len(r.cron.Entries()); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
	if err := r.Register("every day"); err == nil {
		t.Error("Register accepted an invalid schedule")
	}
	r.Start()
	r.Stop()
}
