// Package domain contains the shared market-data types used across the
// refresh pipeline. The domain layer is pure: no infrastructure dependencies.
package domain

import "time"

// Candle represents one daily price bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series is an ordered daily price history, oldest bar first.
type Series []Candle

// Closes returns the closing prices in series order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices in series order.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices in series order.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the volumes in series order.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = float64(c.Volume)
	}
	return out
}

// Latest returns the most recent candle, or nil for an empty series.
func (s Series) Latest() *Candle {
	if len(s) == 0 {
		return nil
	}
	return &s[len(s)-1]
}
