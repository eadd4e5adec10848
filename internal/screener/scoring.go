// Package screener implements the momentum scoring engine behind the
// candidate screener. Scoring is a pure, deterministic heuristic ranking
// function over a daily price/volume series - it performs no I/O and is not
// a certified trading signal.
package screener

import (
	"fmt"
	"strings"

	"github.com/swingscan/swingscan/pkg/formulas"
)

// Signal point weights. Structure signals (tight base, breakout) carry more
// weight than momentum/volume signals, and the candidate gate requires at
// least one structure signal to fire.
const (
	pointsReturn1D    = 2
	pointsReturn5D    = 2
	pointsReturn20D   = 2
	pointsVolumeSpike = 2
	pointsNearHigh52W = 2
	pointsEMACross    = 2
	pointsRSI         = 1
	pointsTightBase   = 3
	pointsBreakout    = 3
)

// Signal thresholds.
const (
	threshReturn1D      = 1.0  // percent
	threshReturn5D      = 3.0  // percent
	threshReturn20D     = 8.0  // percent
	threshVolumeSpike   = 1.5  // multiple of trailing average
	threshNearHigh52W   = 0.05 // fraction below 52-week high
	threshRSI           = 60.0
	threshTightBase     = 0.05 // fraction of range over base window
	baseWindow          = 20   // bars in the tight-base window
	breakoutWindow      = 40   // preceding bars a breakout must clear
	minBreakoutHistory  = 20   // minimum preceding bars for a breakout signal
	emaFastPeriod       = 20
	emaSlowPeriod       = 50
	volumeAverageWindow = 20

	// PassThreshold is the minimum composite score for candidate status.
	PassThreshold = 7
)

// Setup classifications, priority ordered. Only the first matching rule
// applies.
const (
	SetupTightBaseBreakout = "Tight Base Breakout"
	SetupTightBase         = "Tight Base"
	SetupBreakout          = "Breakout"
	SetupEMACrossover      = "EMA Crossover"
	SetupRSIMomentum       = "RSI Momentum"
	SetupNone              = "No actionable setup"
)

// Input is everything the scorer needs for one symbol. RSI and the 52-week
// high are precomputed by the caller (see BuildInput) so the scorer itself
// stays a pure function of its arguments.
type Input struct {
	Symbol  string
	Closes  []float64
	Volumes []float64
	High52W float64  // 0 when unknown; the proximity signal is skipped
	RSI     *float64 // nil when there is not enough history
}

// ParamScore records a sub-signal's raw value and awarded points for
// explainability and debugging.
type ParamScore struct {
	Value  float64 `json:"value"`
	Points int     `json:"points"`
}

// Result is the composite momentum score for one symbol.
type Result struct {
	Symbol      string                `json:"symbol"`
	Score       int                   `json:"score"`
	Reasons     []string              `json:"reasons"`
	ParamScores map[string]ParamScore `json:"param_scores"`
	SetupType   string                `json:"setup_type"`
	SetupScore  int                   `json:"setup_score"`
	Pass        bool                  `json:"pass"`
}

// minBars is the least history the scorer accepts. Below this the tight-base
// and volume signals cannot be computed, so the symbol short-circuits to
// not-a-candidate rather than producing a partial, misleading score.
const minBars = volumeAverageWindow + 1

// Score computes the composite momentum score for one symbol. Deterministic:
// identical inputs yield identical scores, reasons, and setup types.
func Score(in Input) Result {
	res := Result{
		Symbol:      in.Symbol,
		ParamScores: make(map[string]ParamScore),
		SetupType:   SetupNone,
	}

	if len(in.Closes) < minBars {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("insufficient data: %d bars, need %d", len(in.Closes), minBars))
		return res
	}

	closes := in.Closes
	latest := closes[len(closes)-1]

	// Multi-horizon returns. A horizon is skipped (not scored as zero) when
	// the series is too short for it.
	res.scoreReturn(closes, 1, threshReturn1D, pointsReturn1D, "return_1d")
	res.scoreReturn(closes, 5, threshReturn5D, pointsReturn5D, "return_5d")
	res.scoreReturn(closes, 20, threshReturn20D, pointsReturn20D, "return_20d")

	// Volume spike: latest volume vs trailing average, excluding the latest
	// bar so the spike itself does not inflate its own baseline.
	if len(in.Volumes) >= volumeAverageWindow+1 {
		latestVol := in.Volumes[len(in.Volumes)-1]
		trailing := in.Volumes[len(in.Volumes)-1-volumeAverageWindow : len(in.Volumes)-1]
		avg := formulas.Mean(trailing)
		if avg > 0 {
			ratio := latestVol / avg
			points := 0
			if ratio > threshVolumeSpike {
				points = pointsVolumeSpike
				res.addSignal(points, fmt.Sprintf("Volume spike: %.1fx 20-day average", ratio))
			}
			res.ParamScores["volume_spike"] = ParamScore{Value: ratio, Points: points}
		}
	}

	// Proximity to 52-week high.
	if in.High52W > 0 {
		distance := (in.High52W - latest) / in.High52W
		points := 0
		if distance < threshNearHigh52W {
			points = pointsNearHigh52W
			res.addSignal(points, fmt.Sprintf("Within %.1f%% of 52-week high", distance*100))
		}
		res.ParamScores["near_52w_high"] = ParamScore{Value: distance, Points: points}
	}

	// EMA cross: both averages must be computable or the signal stays silent.
	emaFast := formulas.CalculateEMA(closes, emaFastPeriod)
	emaSlow := formulas.CalculateEMA(closes, emaSlowPeriod)
	if emaFast != nil && emaSlow != nil {
		points := 0
		if *emaFast > *emaSlow {
			points = pointsEMACross
			res.addSignal(points, fmt.Sprintf("EMA %d above EMA %d", emaFastPeriod, emaSlowPeriod))
		}
		res.ParamScores["ema_cross"] = ParamScore{Value: *emaFast - *emaSlow, Points: points}
	}

	// RSI momentum.
	if in.RSI != nil {
		points := 0
		if *in.RSI > threshRSI {
			points = pointsRSI
			res.addSignal(points, fmt.Sprintf("RSI %.0f above %.0f", *in.RSI, threshRSI))
		}
		res.ParamScores["rsi"] = ParamScore{Value: *in.RSI, Points: points}
	}

	// Tight base: narrow range over the last 20 closes.
	tightBase := false
	baseCloses := closes[len(closes)-baseWindow:]
	lo := formulas.Min(baseCloses)
	if lo > 0 {
		rangeFrac := (formulas.Max(baseCloses) - lo) / lo
		points := 0
		if rangeFrac < threshTightBase {
			points = pointsTightBase
			tightBase = true
			res.addSignal(points, fmt.Sprintf("Tight base: %d-day range %.1f%%", baseWindow, rangeFrac*100))
		}
		res.ParamScores["tight_base"] = ParamScore{Value: rangeFrac, Points: points}
	}

	// Breakout: latest close strictly above the max of the preceding bars
	// (up to 40, excluding the latest). Needs a reasonable amount of
	// preceding history to mean anything.
	breakout := false
	if len(closes)-1 >= minBreakoutHistory {
		start := len(closes) - 1 - breakoutWindow
		if start < 0 {
			start = 0
		}
		prior := closes[start : len(closes)-1]
		priorHigh := formulas.Max(prior)
		points := 0
		if latest > priorHigh {
			points = pointsBreakout
			breakout = true
			res.addSignal(points, fmt.Sprintf("Breakout above %d-day high", breakoutWindow))
		}
		res.ParamScores["breakout"] = ParamScore{Value: latest - priorHigh, Points: points}
	}

	res.classify(tightBase, breakout)
	res.Pass = res.Score >= PassThreshold && res.hasStructureReason()

	return res
}

// scoreReturn applies one return-horizon signal. Computed as
// (close[t] - close[t-k]) / close[t-k] * 100; skipped entirely when fewer
// than k+1 data points exist.
func (r *Result) scoreReturn(closes []float64, k int, threshold float64, points int, name string) {
	if len(closes) < k+1 {
		return
	}
	prev := closes[len(closes)-1-k]
	if prev <= 0 {
		return
	}
	ret := (closes[len(closes)-1] - prev) / prev * 100
	awarded := 0
	if ret > threshold {
		awarded = points
		r.addSignal(points, fmt.Sprintf("%d-day return %.1f%%", k, ret))
	}
	r.ParamScores[name] = ParamScore{Value: ret, Points: awarded}
}

func (r *Result) addSignal(points int, reason string) {
	r.Score += points
	r.Reasons = append(r.Reasons, reason)
}

// classify assigns the setup type, first-match-wins in priority order.
func (r *Result) classify(tightBase, breakout bool) {
	emaCross := r.ParamScores["ema_cross"].Points > 0
	rsiMomentum := r.ParamScores["rsi"].Points > 0

	switch {
	case tightBase && breakout:
		r.SetupType = SetupTightBaseBreakout
		r.SetupScore = pointsTightBase + pointsBreakout
	case tightBase:
		r.SetupType = SetupTightBase
		r.SetupScore = pointsTightBase
	case breakout:
		r.SetupType = SetupBreakout
		r.SetupScore = pointsBreakout
	case emaCross:
		r.SetupType = SetupEMACrossover
		r.SetupScore = pointsEMACross
	case rsiMomentum:
		r.SetupType = SetupRSIMomentum
		r.SetupScore = pointsRSI
	default:
		r.SetupType = SetupNone
		r.SetupScore = 0
	}
}

// hasStructureReason reports whether any triggered reason mentions a base or
// breakout. A high score built purely from momentum/volume/RSI signals does
// not qualify a candidate.
func (r *Result) hasStructureReason() bool {
	for _, reason := range r.Reasons {
		lower := strings.ToLower(reason)
		if strings.Contains(lower, "base") || strings.Contains(lower, "breakout") {
			return true
		}
	}
	return false
}
