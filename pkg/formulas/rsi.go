package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index.
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if there is not enough data.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	// Return the last value
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
