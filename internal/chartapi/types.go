package chartapi

import (
	"kline/internal/calendar"
	"kline/internal/domain"
	"kline/pkg/kline"
)

// Calendar responses are shared with the public client.
type (
	DayResponse     = kline.DayResponse
	MarketResponse  = kline.MarketResponse
	BetweenResponse = kline.BetweenResponse
	ErrorResponse   = kline.ErrorResponse
)

// HolidaysResponse lists the closure table.
type HolidaysResponse struct {
	Holidays []calendar.HolidayRange `json:"holidays"`
}

// StocksResponse lists stocks matching a query. It encodes as
// kline.StocksResponse.
type StocksResponse struct {
	Stocks domain.Stocks `json:"stocks"`
}
