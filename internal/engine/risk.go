package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
)

// ErrSizing is returned when a position size cannot be derived from a
// recommendation, e.g. the stop sits exactly at the entry price.
var ErrSizing = errors.New("position sizing failed")

const (
	// DefaultMaxOpenPositions caps how many positions may run at once.
	DefaultMaxOpenPositions = 3
	// DefaultMinConfidence is the lowest decision confidence (0..100) that
	// may open a position.
	DefaultMinConfidence = 75.0
)

// RiskManager enforces pre-trade rules: a cap on concurrently open
// positions and a minimum decision confidence.
type RiskManager struct {
	maxOpen       int
	minConfidence float64
}

// NewRiskManager creates a RiskManager with the specified thresholds.
//
//   - maxOpen: entries are refused once this many positions are open.
//   - minConfidence: entries need a decision confidence of at least this
//     value on the 0..100 scale.
func NewRiskManager(maxOpen int, minConfidence float64) *RiskManager {
	return &RiskManager{
		maxOpen:       maxOpen,
		minConfidence: minConfidence,
	}
}

// AllowEntry reports whether a decision may open a new position given the
// number of positions already open.
func (rm *RiskManager) AllowEntry(openCount int, d domain.Decision) bool {
	return openCount < rm.maxOpen &&
		d.Action != domain.ActionHold &&
		d.Confidence >= rm.minConfidence
}

// PositionSize applies fixed fractional sizing: the number of whole units
// such that hitting the stop loses riskPct of balance.
//
//	size = floor(balance * riskPct / |entry - stop|)
func PositionSize(balance, riskPct, entry, stop decimal.Decimal) (int64, error) {
	perUnit := entry.Sub(stop).Abs()
	if perUnit.IsZero() {
		return 0, fmt.Errorf("%w: stop %s equals entry", ErrSizing, stop)
	}

	riskAmount := balance.Mul(riskPct)
	size := riskAmount.Div(perUnit).Floor().IntPart()
	if size < 1 {
		return 0, fmt.Errorf("%w: risk %s over %s per unit is less than one unit", ErrSizing, riskAmount, perUnit)
	}
	return size, nil
}
