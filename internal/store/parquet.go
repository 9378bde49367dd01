package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"kline/internal/calendar"
	"kline/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for day and minute bars.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	Yesterday float64 `parquet:"yesterday"`
}

const minuteLayout = "2006-01-02 15:04:05"

func toRecord(b domain.Bar) (BarRecord, error) {
	t, err := calendar.ParseInstant(b.Date)
	if err != nil {
		return BarRecord{}, err
	}
	return BarRecord{
		Timestamp: t.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Yesterday: b.Yesterday,
	}, nil
}

func (r BarRecord) toBar(layout string) domain.Bar {
	return domain.Bar{
		Date:      time.UnixMilli(r.Timestamp).In(calendar.Location()).Format(layout),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Yesterday: r.Yesterday,
	}
}

// ---------------------------------------------------------------------------
// Day bars
// ---------------------------------------------------------------------------

// WriteDailyBars writes day bars to Parquet files organized by year:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteDailyBars(_ context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		rec, err := toRecord(b)
		if err != nil {
			return fmt.Errorf("bar %s: %w", b.Date, err)
		}
		year := time.UnixMilli(rec.Timestamp).In(calendar.Location()).Year()
		groups[year] = append(groups[year], rec)
	}

	for year, records := range groups {
		path := s.dailyPath(symbol, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadDailyBars reads day bars from the year files overlapping [start, end].
func (s *ParquetStore) ReadDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.dailyPath(symbol, year))
		if err != nil {
			// File doesn't exist for this year — skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if !ts.Before(start) && !ts.After(end) {
				bars = append(bars, r.toBar(calendar.DateLayout))
			}
		}
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// Minute bars
// ---------------------------------------------------------------------------

// WriteSessionBars writes one session of minute bars to
//
//	<DataDir>/minute/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteSessionBars(_ context.Context, symbol string, day calendar.TradingDay, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		if !strings.HasPrefix(b.Date, day.Date()) {
			return fmt.Errorf("bar %s outside session %s", b.Date, day.Date())
		}
		rec, err := toRecord(b)
		if err != nil {
			return fmt.Errorf("bar %s: %w", b.Date, err)
		}
		records = append(records, rec)
	}

	path := s.minutePath(symbol, day.Date())
	existing, _ := readParquetFile[BarRecord](path)
	if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
		return fmt.Errorf("writing minute bars for %s/%s: %w", symbol, day.Date(), err)
	}
	return nil
}

// ReadSessionBars returns the minute bars stored for one session. A missing
// file is not an error.
func (s *ParquetStore) ReadSessionBars(_ context.Context, symbol string, day calendar.TradingDay) ([]domain.Bar, error) {
	path := s.minutePath(symbol, day.Date())
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = r.toBar(minuteLayout)
	}
	return bars, nil
}

// ListSymbols lists all symbols that have day or minute data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, kind := range []string{"daily", "minute"} {
		entries, err := os.ReadDir(filepath.Join(s.DataDir, kind))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ListSessions lists the session dates with minute data for symbol.
func (s *ParquetStore) ListSessions(_ context.Context, symbol string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "minute", strings.ToUpper(symbol)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".parquet"); ok && !e.IsDir() {
			dates = append(dates, name)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// dailyPath returns the filesystem path for a day bar Parquet file.
func (s *ParquetStore) dailyPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// minutePath returns the filesystem path for a session's minute bar file.
func (s *ParquetStore) minutePath(symbol, date string) string {
	return filepath.Join(s.DataDir, "minute", strings.ToUpper(symbol), date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
