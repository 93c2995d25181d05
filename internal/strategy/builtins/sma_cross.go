// Package builtins provides built-in strategy implementations that ship with
// chartist. They are deterministic functions of the bar window and are used
// for offline backtests and as the default remote oracle.
package builtins

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
	"chartist/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

const (
	crossConfidence = 80.0
	trendConfidence = 50.0
)

// SMACross implements a simple moving average crossover strategy. It
// recommends a buy when the short-period SMA crosses above the long-period
// SMA and a sell when it crosses below. Without a fresh cross it reports the
// prevailing trend at a confidence too low to open a position.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	stopPct     decimal.Decimal
	targetPct   decimal.Decimal
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. stopPct and targetPct place the stop and
// target as fractions of the entry price (e.g. 0.02 and 0.04).
func NewSMACross(short, long int, stopPct, targetPct float64) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		stopPct:     decimal.NewFromFloat(stopPct),
		targetPct:   decimal.NewFromFloat(targetPct),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Decide compares the SMAs on the last two bars of the window.
func (s *SMACross) Decide(_ context.Context, req strategy.DecisionRequest) (domain.Decision, error) {
	if s.shortPeriod <= 0 || s.shortPeriod >= s.longPeriod {
		return domain.Decision{}, fmt.Errorf("sma-cross: invalid periods %d/%d", s.shortPeriod, s.longPeriod)
	}
	closes := closes(req.Window)
	if len(closes) < s.longPeriod+1 {
		return domain.Decision{
			Action:    domain.ActionHold,
			Reasoning: fmt.Sprintf("need %d bars, have %d", s.longPeriod+1, len(closes)),
		}, nil
	}

	n := len(closes)
	prevShort, prevLong := sma(closes[:n-1], s.shortPeriod), sma(closes[:n-1], s.longPeriod)
	curShort, curLong := sma(closes, s.shortPeriod), sma(closes, s.longPeriod)

	var (
		action     domain.Action
		confidence float64
		reason     string
	)
	switch {
	case prevShort <= prevLong && curShort > curLong:
		action, confidence, reason = domain.ActionBuy, crossConfidence, "short SMA crossed above long SMA"
	case prevShort >= prevLong && curShort < curLong:
		action, confidence, reason = domain.ActionSell, crossConfidence, "short SMA crossed below long SMA"
	case curShort > curLong:
		action, confidence, reason = domain.ActionBuy, trendConfidence, "uptrend without fresh cross"
	case curShort < curLong:
		action, confidence, reason = domain.ActionSell, trendConfidence, "downtrend without fresh cross"
	default:
		return domain.Decision{Action: domain.ActionHold, Reasoning: "SMAs flat"}, nil
	}

	entry := decimal.NewFromFloat(closes[n-1])
	return domain.Decision{
		Action:         action,
		Confidence:     confidence,
		Recommendation: bracket(action, entry, s.stopPct, s.targetPct),
		Reasoning:      fmt.Sprintf("%s (SMA%d=%.4f SMA%d=%.4f)", reason, s.shortPeriod, curShort, s.longPeriod, curLong),
	}, nil
}

// bracket places stop and target as fixed fractions around entry.
func bracket(action domain.Action, entry, stopPct, targetPct decimal.Decimal) domain.Recommendation {
	one := decimal.NewFromInt(1)
	rec := domain.Recommendation{EntryPrice: entry}
	if action == domain.ActionBuy {
		rec.StopLoss = entry.Mul(one.Sub(stopPct)).Round(4)
		rec.TakeProfit = entry.Mul(one.Add(targetPct)).Round(4)
	} else {
		rec.StopLoss = entry.Mul(one.Add(stopPct)).Round(4)
		rec.TakeProfit = entry.Mul(one.Sub(targetPct)).Round(4)
	}
	return rec
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// sma averages the last period values of xs.
func sma(xs []float64, period int) float64 {
	var sum float64
	for _, x := range xs[len(xs)-period:] {
		sum += x
	}
	return sum / float64(period)
}
