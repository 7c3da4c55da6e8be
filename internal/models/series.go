package models

import (
	"fmt"
	"time"
)

// PricePoint is a single daily OHLCV bar.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is an ordered-by-date sequence of bars for one symbol.
// Dates are strictly increasing; gaps (weekends, holidays) are simply absent.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of bars in the series.
func (s PriceSeries) Len() int { return len(s.Points) }

// Empty reports whether the series has no bars. An empty series is a valid
// "no data" outcome, not an error.
func (s PriceSeries) Empty() bool { return len(s.Points) == 0 }

// Last returns the most recent bar. Callers must check Empty first.
func (s PriceSeries) Last() PricePoint { return s.Points[len(s.Points)-1] }

// Validate checks the series invariants: strictly increasing dates,
// non-negative prices and high >= max(open, close) >= min(open, close) >= low.
func (s PriceSeries) Validate() error {
	for i, p := range s.Points {
		if p.Open < 0 || p.High < 0 || p.Low < 0 || p.Close < 0 || p.Volume < 0 {
			return fmt.Errorf("bar %d (%s): negative value", i, p.Date.Format("2006-01-02"))
		}
		hi := p.Open
		if p.Close > hi {
			hi = p.Close
		}
		lo := p.Open
		if p.Close < lo {
			lo = p.Close
		}
		if p.High < hi || p.Low > lo {
			return fmt.Errorf("bar %d (%s): high/low do not bound open/close", i, p.Date.Format("2006-01-02"))
		}
		if i > 0 && !s.Points[i-1].Date.Before(p.Date) {
			return fmt.Errorf("bar %d (%s): date not strictly increasing", i, p.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Before returns the sub-series of bars strictly earlier than t. The replayer
// uses this to guarantee no look-ahead: data for simulated day D is always
// Before(D).
func (s PriceSeries) Before(t time.Time) PriceSeries {
	i := len(s.Points)
	for i > 0 && !s.Points[i-1].Date.Before(t) {
		i--
	}
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[:i]}
}

// Head returns the first n bars (or the whole series when shorter).
func (s PriceSeries) Head(n int) PriceSeries {
	if n > len(s.Points) {
		n = len(s.Points)
	}
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[:n]}
}

// Tail returns the trailing n bars (or the whole series when shorter).
func (s PriceSeries) Tail(n int) PriceSeries {
	if n >= len(s.Points) {
		return s
	}
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[len(s.Points)-n:]}
}

// Closes returns the close prices as a slice.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Highs returns the high prices as a slice.
func (s PriceSeries) Highs() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.High
	}
	return out
}

// Lows returns the low prices as a slice.
func (s PriceSeries) Lows() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Low
	}
	return out
}

// Volumes returns the volumes as a slice.
func (s PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Volume
	}
	return out
}
