package builtins

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
	"chartist/internal/strategy"
)

var _ strategy.Strategy = (*Breakout)(nil)

// Breakout trades a close outside the Donchian channel formed by the
// preceding lookback bars. The stop sits at the opposite channel edge and
// the target at rewardRisk times the stop distance.
type Breakout struct {
	lookback   int
	rewardRisk decimal.Decimal
}

// NewBreakout creates a Breakout strategy. A lookback of 0 uses the whole
// window except the last bar.
func NewBreakout(lookback int, rewardRisk float64) *Breakout {
	return &Breakout{lookback: lookback, rewardRisk: decimal.NewFromFloat(rewardRisk)}
}

// Name returns "breakout".
func (b *Breakout) Name() string { return "breakout" }

// Decide checks the last close against the channel of the bars before it.
func (b *Breakout) Decide(_ context.Context, req strategy.DecisionRequest) (domain.Decision, error) {
	if len(req.Window) < 2 {
		return domain.Decision{Action: domain.ActionHold, Reasoning: "window too short"}, nil
	}

	prior := req.Window[:len(req.Window)-1]
	if b.lookback > 0 && len(prior) > b.lookback {
		prior = prior[len(prior)-b.lookback:]
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, bar := range prior {
		hi = math.Max(hi, bar.High)
		lo = math.Min(lo, bar.Low)
	}

	last := req.Last()
	entry := decimal.NewFromFloat(last.Close)
	high := decimal.NewFromFloat(hi)
	low := decimal.NewFromFloat(lo)

	switch {
	case last.Close > hi:
		risk := entry.Sub(low)
		return domain.Decision{
			Action:     domain.ActionBuy,
			Confidence: crossConfidence,
			Recommendation: domain.Recommendation{
				EntryPrice: entry,
				StopLoss:   low,
				TakeProfit: entry.Add(risk.Mul(b.rewardRisk)).Round(4),
			},
			Reasoning: fmt.Sprintf("close %.4f above %d-bar high %.4f", last.Close, len(prior), hi),
		}, nil
	case last.Close < lo:
		risk := high.Sub(entry)
		return domain.Decision{
			Action:     domain.ActionSell,
			Confidence: crossConfidence,
			Recommendation: domain.Recommendation{
				EntryPrice: entry,
				StopLoss:   high,
				TakeProfit: entry.Sub(risk.Mul(b.rewardRisk)).Round(4),
			},
			Reasoning: fmt.Sprintf("close %.4f below %d-bar low %.4f", last.Close, len(prior), lo),
		}, nil
	}
	return domain.Decision{Action: domain.ActionHold, Reasoning: "inside channel"}, nil
}
