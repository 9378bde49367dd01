// Package chartapi serves charts, calendar lookups and the stock list over
// HTTP.
package chartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/internal/resample"
	"kline/internal/series"
	"kline/internal/store"
)

// maxCachedCharts bounds the chart cache; reaching it clears the cache.
const maxCachedCharts = 1024

// Charter builds charts. *series.Service implements it.
type Charter interface {
	Chart(ctx context.Context, req series.Request) (*domain.Chart, error)
}

var _ Charter = (*series.Service)(nil)

// Server serves the chart API.
type Server struct {
	charts Charter
	stocks store.StockStore
	token  string
	log    *slog.Logger
	market *calendar.TradingCalendar
	now    func() time.Time
	cache  sync.Map // request key → *domain.Chart
	cached atomic.Int64
}

// NewServer creates a chart server. stocks may be nil, in which case the
// stock routes answer 503. A non-empty token is required as a bearer token on
// every /api route.
func NewServer(charts Charter, stocks store.StockStore, token string, log *slog.Logger) *Server {
	return &Server{
		charts: charts,
		stocks: stocks,
		token:  token,
		log:    log,
		market: calendar.NewTradingCalendar(),
		now:    time.Now,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chart/{symbol}", s.handleChart)
	mux.HandleFunc("GET /api/calendar/latest", s.handleLatest)
	mux.HandleFunc("GET /api/calendar/market", s.handleMarket)
	mux.HandleFunc("GET /api/calendar/day/{date}", s.handleDay)
	mux.HandleFunc("GET /api/calendar/between", s.handleBetween)
	mux.HandleFunc("GET /api/calendar/holidays", s.handleHolidays)
	mux.HandleFunc("GET /api/stocks", s.handleStocks)
	return corsMiddleware(s.authMiddleware(mux))
}

// ClearCache drops every cached chart.
func (s *Server) ClearCache() {
	n := 0
	s.cache.Range(func(k, _ any) bool {
		if _, ok := s.cache.LoadAndDelete(k); ok {
			s.cached.Add(-1)
			n++
		}
		return true
	})
	s.log.Info("chart cache cleared", "entries", n)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := series.Request{
		Symbol: r.PathValue("symbol"),
		Period: calendar.Day,
		End:    q.Get("end"),
	}
	if p := q.Get("period"); p != "" {
		period, err := calendar.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.Period = period
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", l))
			return
		}
		req.Limit = n
	}

	// The key carries the resolved end so "latest" moves with the calendar.
	// Charts ending in a running session change bar by bar and are not cached.
	now := s.now()
	end := calendar.LatestAt(now)
	if req.End != "" {
		d, err := calendar.Parse(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		end = d
	}
	live := s.market.IsMarketOpen(now) && end.Date() == calendar.LatestAt(now).Date()
	key := fmt.Sprintf("%s|%s|%s|%d", req.Symbol, req.Period, end, req.Limit)
	if !live {
		if cached, ok := s.cache.Load(key); ok {
			writeJSON(w, cached.(*domain.Chart))
			return
		}
	}

	c, err := s.charts.Chart(r.Context(), req)
	if err != nil {
		s.log.Error("building chart", "symbol", req.Symbol, "period", req.Period, "error", err)
		writeError(w, statusOf(err), err)
		return
	}

	if !live {
		s.remember(key, c)
	}
	writeJSON(w, c)
}

func (s *Server) remember(key string, c *domain.Chart) {
	if _, loaded := s.cache.LoadOrStore(key, c); loaded {
		return
	}
	if s.cached.Add(1) > maxCachedCharts {
		s.ClearCache()
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, DayView(calendar.Latest().Time()))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(calendar.Location())
	writeJSON(w, MarketResponse{
		Now:       now.Format(time.DateTime),
		Open:      s.market.IsMarketOpen(now),
		Session:   s.market.Session(now).Date(),
		NextOpen:  s.market.NextOpen(now).Format(time.DateTime),
		NextClose: s.market.NextClose(now).Format(time.DateTime),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	t, err := calendar.ParseInstant(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, DayView(t))
}

func (s *Server) handleBetween(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := calendar.Parse(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := calendar.Parse(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, BetweenResponse{
		From:     from.Date(),
		To:       to.Date(),
		Sessions: from.WithPeriod(calendar.Day).Between(to.WithPeriod(calendar.Day)),
	})
}

func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HolidaysResponse{Holidays: calendar.Holidays()})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	if s.stocks == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("stock list not configured"))
		return
	}
	stocks, err := s.stocks.ListStocks(r.Context())
	if err != nil {
		s.log.Error("listing stocks", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := stocks.Filter(r.URL.Query().Get("q"))
	if out == nil {
		out = domain.Stocks{}
	}
	writeJSON(w, StocksResponse{Stocks: out})
}

// DayView describes the calendar date of t. Neighbours are computed from the
// date itself, so a holiday's previous session is the one before it.
func DayView(t time.Time) DayResponse {
	d := calendar.At(t, calendar.Day)
	date := d.Date()
	weekend, _ := calendar.IsWeekend(date)
	holiday := calendar.IsHoliday(date)
	return DayResponse{
		Date:       date,
		Trading:    !weekend && !holiday,
		Weekend:    weekend,
		Holiday:    holiday,
		Previous:   d.Previous().Date(),
		Next:       d.Next().Date(),
		WeekStart:  d.WeekStartDay().Date(),
		WeekEnd:    d.WeekEndDay().Date(),
		MonthStart: d.MonthStartDay().Date(),
		MonthEnd:   d.MonthEndDay().Date(),
		Open:       d.OpenTime().String(),
		Close:      d.CloseTime().String(),
	}
}

func statusOf(err error) int {
	var die *resample.DataIntegrityError
	switch {
	case calendar.IsParseError(err),
		errors.Is(err, calendar.ErrInvalidPeriod),
		errors.Is(err, resample.ErrUnsupported):
		return http.StatusBadRequest
	case errors.As(err, &die):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := "Bearer " + s.token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != want {
			writeError(w, http.StatusUnauthorized, errors.New("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()}); err != nil {
		slog.Error("writing JSON error", "error", err)
	}
}
