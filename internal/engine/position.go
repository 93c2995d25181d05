// Package engine manages the lifecycle of simulated positions: sizing and
// opening them from strategy decisions, checking stops and targets against
// each new bar, and closing them with realized PnL.
package engine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ExecutePosition turns a decision into a new open position. It returns
// (nil, nil) when the decision does not call for a trade: a hold, or a
// recommendation missing its entry, stop or target. Sizing failures are
// reported as ErrSizing.
func ExecutePosition(
	symbol string,
	d domain.Decision,
	bar domain.Bar,
	balance decimal.Decimal,
	defaultRisk decimal.Decimal,
) (*domain.Position, error) {
	if d.Action == domain.ActionHold || !d.Recommendation.Complete() {
		return nil, nil
	}

	rec := d.Recommendation
	risk := rec.RiskPercentage
	if risk.IsZero() {
		risk = defaultRisk
	}

	size, err := PositionSize(balance, risk, rec.EntryPrice, rec.StopLoss)
	if err != nil {
		return nil, err
	}

	side := domain.PositionSideShort
	if d.Action == domain.ActionBuy {
		side = domain.PositionSideLong
	}

	return &domain.Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: rec.EntryPrice,
		EntryTime:  bar.Timestamp,
		Size:       size,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
	}, nil
}

// UpdateOpenPositions checks every open position against bar and closes
// those whose stop or target was touched. The stop is evaluated first, so a
// bar that spans both levels exits at the stop. balance is only used for the
// PnL percentage of closed positions.
//
// The input is partitioned stably: open keeps the positions still running
// and closed the ones that exited on this bar, both in their original order.
func UpdateOpenPositions(
	positions []*domain.Position,
	bar domain.Bar,
	balance decimal.Decimal,
) (open, closed []*domain.Position) {
	low := decimal.NewFromFloat(bar.Low)
	high := decimal.NewFromFloat(bar.High)

	open = make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			// Closed on an earlier bar and already reported.
			continue
		}

		price, reason, hit := exitLevel(p, low, high)
		if hit {
			ClosePosition(p, price, bar.Timestamp, reason, balance)
			closed = append(closed, p)
			continue
		}
		open = append(open, p)
	}
	return open, closed
}

// exitLevel reports the price and reason at which p exits within a bar
// spanning [low, high], if any.
func exitLevel(p *domain.Position, low, high decimal.Decimal) (decimal.Decimal, domain.ExitReason, bool) {
	switch p.Side {
	case domain.PositionSideLong:
		if low.LessThanOrEqual(p.StopLoss) {
			return p.StopLoss, domain.ExitStopLoss, true
		}
		if high.GreaterThanOrEqual(p.TakeProfit) {
			return p.TakeProfit, domain.ExitTakeProfit, true
		}
	case domain.PositionSideShort:
		if high.GreaterThanOrEqual(p.StopLoss) {
			return p.StopLoss, domain.ExitStopLoss, true
		}
		if low.LessThanOrEqual(p.TakeProfit) {
			return p.TakeProfit, domain.ExitTakeProfit, true
		}
	}
	return decimal.Zero, "", false
}

// ClosePosition attaches the exit record to p. It is the only place a
// position moves from open to closed. Closing an already closed position is
// a no-op and returns false.
//
// The PnL percentage is taken against balanceAtClose. A zero balance leaves
// it as NaN rather than dividing by zero.
func ClosePosition(
	p *domain.Position,
	exitPrice decimal.Decimal,
	exitTime time.Time,
	reason domain.ExitReason,
	balanceAtClose decimal.Decimal,
) bool {
	if !p.IsOpen() {
		return false
	}

	size := decimal.NewFromInt(p.Size)
	var pnl decimal.Decimal
	if p.Side == domain.PositionSideLong {
		pnl = exitPrice.Sub(p.EntryPrice).Mul(size)
	} else {
		pnl = p.EntryPrice.Sub(exitPrice).Mul(size)
	}

	pct := math.NaN()
	if !balanceAtClose.IsZero() {
		pct = pnl.Div(balanceAtClose).Mul(hundred).InexactFloat64()
	}

	p.Exit = &domain.Exit{
		Price:         exitPrice,
		Time:          exitTime,
		Reason:        reason,
		PnL:           pnl,
		PnLPercentage: domain.Ratio(pct),
	}
	return true
}
