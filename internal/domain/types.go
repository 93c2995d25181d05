// Package domain defines the core types shared across chartist: market bars,
// strategy decisions, simulated positions and backtest results.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the exchange region a bar archive belongs to.
type Market string

const (
	MarketUS Market = "us"
)

// Bar is a single OHLCV sample for a fixed time interval.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

// Action is the trading action recommended by a strategy.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Recommendation carries the prices attached to a decision. A zero price
// means the strategy did not supply it.
type Recommendation struct {
	EntryPrice     decimal.Decimal `json:"entry_price"`
	StopLoss       decimal.Decimal `json:"stop_loss"`
	TakeProfit     decimal.Decimal `json:"take_profit"`
	RiskPercentage decimal.Decimal `json:"risk_percentage"` // fraction of balance, 0 = use default
}

// Complete reports whether entry, stop and target are all present.
func (r Recommendation) Complete() bool {
	return !r.EntryPrice.IsZero() && !r.StopLoss.IsZero() && !r.TakeProfit.IsZero()
}

// Decision is the output of a strategy for one analysed bar.
type Decision struct {
	Action         Action         `json:"action"`
	Confidence     float64        `json:"confidence"` // 0..100
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// PositionSide is the direction of a simulated position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitEndOfBacktest ExitReason = "end_of_backtest"
)

// Exit is the closing half of a position. It is attached exactly once.
type Exit struct {
	Price         decimal.Decimal `json:"exit_price"`
	Time          time.Time       `json:"exit_time"`
	Reason        ExitReason      `json:"reason"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercentage Ratio           `json:"pnl_percentage"`
}

// Position is a simulated trade. It is open while Exit is nil.
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	Size       int64           `json:"size"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Exit       *Exit           `json:"exit,omitempty"`
}

// IsOpen reports whether the position has not been closed yet.
func (p *Position) IsOpen() bool { return p.Exit == nil }

// PnL returns the realized profit of a closed position, zero while open.
func (p *Position) PnL() decimal.Decimal {
	if p.Exit == nil {
		return decimal.Zero
	}
	return p.Exit.PnL
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// EquityPoint is the account balance after a processed bar.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Balance   decimal.Decimal `json:"balance"`
}

// AnalysisRecord captures what the strategy saw and said at one bar.
type AnalysisRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Decision  Decision  `json:"analysis_result"`
	Artifact  []byte    `json:"chart_image,omitempty"`
}

// Stats summarises a finished trade log and equity curve.
type Stats struct {
	TotalTrades           int             `json:"total_trades"`
	WinningTrades         int             `json:"winning_trades"`
	LosingTrades          int             `json:"losing_trades"`
	WinRate               float64         `json:"win_rate"`
	AverageWin            decimal.Decimal `json:"average_win"`
	AverageLoss           decimal.Decimal `json:"average_loss"`
	ProfitFactor          Ratio           `json:"profit_factor"`
	MaxDrawdown           decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercentage float64         `json:"max_drawdown_percentage"`
	TotalReturn           decimal.Decimal `json:"total_return"`
	TotalReturnPercentage float64         `json:"total_return_percentage"`
}

// BacktestResult is the immutable outcome of one simulation run.
type BacktestResult struct {
	ID              string           `json:"id,omitempty"`
	Symbol          string           `json:"symbol"`
	Timeframe       string           `json:"timeframe"`
	Strategy        string           `json:"strategy"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	InitialBalance  decimal.Decimal  `json:"initial_balance"`
	FinalBalance    decimal.Decimal  `json:"final_balance"`
	RiskPerTrade    decimal.Decimal  `json:"risk_per_trade"`
	Stats           Stats            `json:"stats"`
	Trades          []Position       `json:"trades"`
	EquityCurve     []EquityPoint    `json:"equity_curve"`
	AnalysisHistory []AnalysisRecord `json:"analysis_history,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
