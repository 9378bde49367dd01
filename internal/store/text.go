package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"kline/internal/calendar"
	"kline/internal/domain"
)

// ParseBars reads comma separated date,open,high,low,close,volume records.
// The first line is a header. Bars that fail IsValid are dropped; the rest
// are returned in date order with duplicates resolved to the last record.
func ParseBars(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var bars []domain.Bar
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 6 {
			return nil, fmt.Errorf("line %d: want 6 fields, got %d", line, len(rec))
		}
		b, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if b.IsValid() {
			bars = append(bars, b)
		}
	}

	slices.SortStableFunc(bars, func(a, b domain.Bar) int { return strings.Compare(a.Date, b.Date) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date == b.Date {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func parseBar(rec []string) (domain.Bar, error) {
	date, err := normalizeDate(rec[0])
	if err != nil {
		return domain.Bar{}, err
	}
	var v [5]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		v[i] = f
	}
	return domain.Bar{Date: date, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

// normalizeDate rewrites a date or date-time into the canonical bar date form.
func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := calendar.ParseInstant(s)
	if err != nil {
		return "", err
	}
	if len(s) > len(calendar.DateLayout) {
		return t.Format(minuteLayout), nil
	}
	return t.Format(calendar.DateLayout), nil
}

// ParseStocks reads tab separated symbol, name records. The first line is a
// header.
func ParseStocks(r io.Reader) (domain.Stocks, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var stocks domain.Stocks
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: want symbol and name", line)
		}
		stocks = append(stocks, domain.Stock{
			Symbol: strings.TrimSpace(rec[0]),
			Name:   strings.TrimSpace(rec[1]),
		})
	}
	return stocks, nil
}
