// Package tradeplan derives an actionable swing-trade plan from a daily
// price series: a breakout trigger over the recent range with ATR-based
// stop and targets. Like the screener scores, plans are heuristic derived
// data, rebuilt from scratch on every refresh.
package tradeplan

import (
	"fmt"
	"time"

	"github.com/swingscan/swingscan/internal/domain"
	"github.com/swingscan/swingscan/pkg/formulas"
)

const (
	atrPeriod      = 14
	rangeWindow    = 20    // bars for support/resistance
	triggerBuffer  = 0.002 // entry sits 0.2% above resistance to avoid a touch-trigger
	stopATRMult    = 2.0
	target1ATRMult = 2.0
	target2ATRMult = 4.0
)

// minBars is the least history a plan needs: ATR(14) wants 15 bars and the
// range window wants 20.
const minBars = rangeWindow + 1

// Plan is the cached trade-plan payload for one symbol.
type Plan struct {
	Symbol     string    `json:"symbol"`
	BasePrice  float64   `json:"base_price"`
	Support    float64   `json:"support"`
	Resistance float64   `json:"resistance"`
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target1    float64   `json:"target1"`
	Target2    float64   `json:"target2"`
	ATR        float64   `json:"atr"`
	RiskReward float64   `json:"risk_reward"`
	AsOf       time.Time `json:"as_of"`
}

// Build derives a plan from the series. Deterministic for identical input.
func Build(symbol string, series domain.Series) (*Plan, error) {
	if len(series) < minBars {
		return nil, fmt.Errorf("insufficient data for %s: %d bars, need %d", symbol, len(series), minBars)
	}

	atrPtr := formulas.CalculateATR(series.Highs(), series.Lows(), series.Closes(), atrPeriod)
	if atrPtr == nil {
		return nil, fmt.Errorf("ATR not computable for %s", symbol)
	}
	atr := *atrPtr

	recent := series[len(series)-rangeWindow:]
	support := formulas.Min(recent.Lows())
	resistance := formulas.Max(recent.Highs())

	latest := series.Latest()
	entry := resistance * (1 + triggerBuffer)
	stop := entry - stopATRMult*atr
	target1 := entry + target1ATRMult*atr
	target2 := entry + target2ATRMult*atr

	risk := entry - stop
	reward := target1 - entry
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}

	return &Plan{
		Symbol:     symbol,
		BasePrice:  latest.Close,
		Support:    support,
		Resistance: resistance,
		Entry:      entry,
		Stop:       stop,
		Target1:    target1,
		Target2:    target2,
		ATR:        atr,
		RiskReward: riskReward,
		AsOf:       latest.Date,
	}, nil
}
