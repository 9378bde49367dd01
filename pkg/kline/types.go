package kline

// Bar is one OHLCV record as the server sends it. Date is YYYY-MM-DD for day
// and week bars and YYYY-MM-DD HH:MM:SS for minute bars.
type Bar struct {
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Yesterday float64 `json:"yesterday"`
}

// Chart is the bars of one symbol at one period ("day", "week", "5m", ...),
// oldest first.
type Chart struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
	Bars   []Bar  `json:"bars"`
}

// Stock is one listed instrument.
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// StocksResponse lists stocks matching a query.
type StocksResponse struct {
	Stocks []Stock `json:"stocks"`
}

// DayResponse describes one calendar date and the sessions around it.
type DayResponse struct {
	Date       string `json:"date"`
	Trading    bool   `json:"trading"`
	Weekend    bool   `json:"weekend"`
	Holiday    bool   `json:"holiday"`
	Previous   string `json:"previous"`
	Next       string `json:"next"`
	WeekStart  string `json:"week_start"`
	WeekEnd    string `json:"week_end"`
	MonthStart string `json:"month_start"`
	MonthEnd   string `json:"month_end"`
	Open       string `json:"open"`
	Close      string `json:"close"`
}

// MarketResponse reports whether a session is running right now.
type MarketResponse struct {
	Now       string `json:"now"`
	Open      bool   `json:"open"`
	Session   string `json:"session"`
	NextOpen  string `json:"next_open"`
	NextClose string `json:"next_close"`
}

// BetweenResponse counts the sessions separating two dates.
type BetweenResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
