package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateATR calculates the Average True Range over the given period.
// Returns nil if there is not enough data (needs length+1 bars).
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)

	if len(atr) > 0 && !isNaN(atr[len(atr)-1]) {
		result := atr[len(atr)-1]
		return &result
	}

	return nil
}
