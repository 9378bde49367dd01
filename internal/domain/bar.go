// Package domain defines the value types shared across kline: bars, charts
// and the stock list.
package domain

// Bar is one OHLCV record for a single period instance. Date is the session
// identifier: YYYY-MM-DD for day and week bars, YYYY-MM-DD HH:MM:SS for
// minute bars. Bars are identified and ordered by Date alone.
type Bar struct {
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Yesterday float64 `json:"yesterday"`
}

// IsValid reports whether all four prices are strictly positive. Producers
// drop invalid bars before they reach a Chart.
func (b Bar) IsValid() bool {
	return b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0
}

// Red reports a bar that closed at or above its open.
func (b Bar) Red() bool { return b.Close >= b.Open }

// Green reports a bar that closed below its open.
func (b Bar) Green() bool { return b.Close < b.Open }

// Markup is the percent change of the close against the previous close, or
// against the open when the previous close is unknown.
func (b Bar) Markup() float64 {
	return Percent(b.Close, b.base())
}

// Amplitude is the high-low range as a percentage of the previous close (or
// the open when the previous close is unknown).
func (b Bar) Amplitude() float64 {
	base := b.base()
	if base == 0 {
		return 0
	}
	return (b.High - b.Low) / base * 100
}

func (b Bar) base() float64 {
	if b.Yesterday == 0 {
		return b.Open
	}
	return b.Yesterday
}

// Merge folds a later bar into b: highs and lows widen, volume accumulates
// and the close moves to the later close. Date, Open and Yesterday stay.
func (b *Bar) Merge(later Bar) {
	b.High = max(b.High, later.High)
	b.Low = min(b.Low, later.Low)
	b.Close = later.Close
	b.Volume += later.Volume
}
