package formulas

// CalculateEMA calculates the Exponential Moving Average.
//
// EMA Formula:
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// The series is seeded with the first price rather than an SMA warm-up, so
// the value is defined for every bar once at least `length` bars exist.
// Returns nil if there are fewer than `length` data points.
func CalculateEMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	k := 2.0 / (float64(length) + 1.0)
	ema := closes[0]
	for _, price := range closes[1:] {
		ema = price*k + ema*(1.0-k)
	}

	return &ema
}
