package screener

import (
	"github.com/swingscan/swingscan/internal/domain"
	"github.com/swingscan/swingscan/pkg/formulas"
)

const (
	rsiPeriod      = 14
	tradingDays52W = 252
)

// BuildInput derives the scorer's input from a raw daily series: closing
// prices, volumes, the 52-week high from the bar highs, and RSI(14).
func BuildInput(symbol string, series domain.Series) Input {
	closes := series.Closes()

	highs := series.Highs()
	if len(highs) > tradingDays52W {
		highs = highs[len(highs)-tradingDays52W:]
	}

	return Input{
		Symbol:  symbol,
		Closes:  closes,
		Volumes: series.Volumes(),
		High52W: formulas.Max(highs),
		RSI:     formulas.CalculateRSI(closes, rsiPeriod),
	}
}
