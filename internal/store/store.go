// Package store persists bars and the stock list, and parses the text
// formats bars and stocks are imported from.
package store

import (
	"context"
	"time"

	"kline/internal/calendar"
	"kline/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteDailyBars merges day bars into storage, replacing bars with the
	// same date.
	WriteDailyBars(ctx context.Context, symbol string, bars []domain.Bar) error

	// ReadDailyBars returns day bars for symbol within [start, end], in date order.
	ReadDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// WriteSessionBars merges the minute bars of one session into storage.
	WriteSessionBars(ctx context.Context, symbol string, day calendar.TradingDay, bars []domain.Bar) error

	// ReadSessionBars returns the minute bars of one session, or nil when
	// the session has no data.
	ReadSessionBars(ctx context.Context, symbol string, day calendar.TradingDay) ([]domain.Bar, error)

	// ListSymbols returns all symbols with any stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// StockStore persists the exchange stock list.
type StockStore interface {
	// SaveStocks inserts or updates stocks by symbol.
	SaveStocks(ctx context.Context, stocks domain.Stocks) error

	// ListStocks returns the stock list ordered by symbol.
	ListStocks(ctx context.Context) (domain.Stocks, error)
}
