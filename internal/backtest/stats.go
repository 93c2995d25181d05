package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CalculateStatistics rolls up win rate, average win/loss, profit factor,
// total return and max drawdown.
//
// Only closed trades are counted. A trade with zero PnL is a loss. The
// drawdown scan starts its peak at initial and keeps the first point when
// several share the largest drawdown.
func CalculateStatistics(
	trades []domain.Position,
	initial, final decimal.Decimal,
	equity []domain.EquityPoint,
) domain.Stats {
	var (
		wins, losses        int
		totalWin, totalLoss decimal.Decimal
		closed              int
	)
	for i := range trades {
		t := &trades[i]
		if t.IsOpen() {
			continue
		}
		closed++
		if t.Exit.PnL.IsPositive() {
			wins++
			totalWin = totalWin.Add(t.Exit.PnL)
		} else {
			losses++
			totalLoss = totalLoss.Add(t.Exit.PnL)
		}
	}
	totalLoss = totalLoss.Abs()

	s := domain.Stats{
		TotalTrades:   closed,
		WinningTrades: wins,
		LosingTrades:  losses,
		WinRate:       float64(wins) / float64(max(closed, 1)),
		AverageWin:    decimal.Zero,
		AverageLoss:   decimal.Zero,
	}
	if wins > 0 {
		s.AverageWin = totalWin.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		s.AverageLoss = totalLoss.Div(decimal.NewFromInt(int64(losses)))
	}

	switch {
	case totalLoss.IsPositive():
		s.ProfitFactor = domain.Ratio(totalWin.Div(totalLoss).InexactFloat64())
	case totalWin.IsPositive():
		s.ProfitFactor = domain.Ratio(math.Inf(1))
	default:
		s.ProfitFactor = 0
	}

	s.TotalReturn = final.Sub(initial)
	if !initial.IsZero() {
		s.TotalReturnPercentage = s.TotalReturn.Div(initial).Mul(hundred).InexactFloat64()
	}

	s.MaxDrawdown, s.MaxDrawdownPercentage = maxDrawdown(initial, equity)
	return s
}

// maxDrawdown returns the largest peak-to-trough decline of the curve and
// that decline as a percentage of its peak.
func maxDrawdown(initial decimal.Decimal, equity []domain.EquityPoint) (decimal.Decimal, float64) {
	peak := initial
	maxDD := decimal.Zero
	maxPct := 0.0
	for _, pt := range equity {
		if pt.Balance.GreaterThan(peak) {
			peak = pt.Balance
		}
		dd := peak.Sub(pt.Balance)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			if !peak.IsZero() {
				maxPct = dd.Div(peak).Mul(hundred).InexactFloat64()
			}
		}
	}
	return maxDD, maxPct
}
