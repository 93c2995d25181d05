// Package backtest replays a strategy over historical bars. The Engine drives
// the bar-by-bar loop, delegates position handling to the engine package and
// rolls the outcome up into a BacktestResult.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chartist/internal/config"
	"chartist/internal/domain"
	"chartist/internal/engine"
	"chartist/internal/feed"
	"chartist/internal/store"
	"chartist/internal/strategy"
)

// WarmupBars is the number of bars consumed before the first decision. The
// decision window at bar i is bars[i-WarmupBars .. i].
const WarmupBars = 60

// Renderer produces an opaque visualization of a decision window, stored
// with the analysis history.
type Renderer interface {
	Render(ctx context.Context, symbol string, window []domain.Bar) ([]byte, error)
}

// Request describes one backtest run. Zero fields take the engine defaults.
type Request struct {
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe,omitempty"`
	Start          time.Time       `json:"start_date"`
	End            time.Time       `json:"end_date"`
	InitialBalance decimal.Decimal `json:"initial_balance,omitempty"`
	RiskPerTrade   decimal.Decimal `json:"risk_per_trade,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
}

// Defaults fill in request fields left unset.
type Defaults struct {
	InitialBalance decimal.Decimal
	RiskPerTrade   decimal.Decimal
	Timeframe      string
	Strategy       string
	BatchWorkers   int
}

// DefaultsFromConfig converts the backtest section of the configuration.
func DefaultsFromConfig(cfg config.BacktestConfig) Defaults {
	return Defaults{
		InitialBalance: decimal.NewFromFloat(cfg.InitialBalance),
		RiskPerTrade:   decimal.NewFromFloat(cfg.RiskPerTrade),
		Timeframe:      cfg.Timeframe,
		Strategy:       cfg.Strategy,
		BatchWorkers:   cfg.BatchWorkers,
	}
}

// Engine runs backtests. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	data       feed.Provider
	strategies *strategy.Registry
	sink       store.ResultSink
	renderer   Renderer
	risk       *engine.RiskManager
	defaults   Defaults
	log        *slog.Logger
	now        func() time.Time
}

// NewEngine creates an Engine. sink and renderer may be nil; without a sink
// results are returned but not stored.
func NewEngine(
	data feed.Provider,
	strategies *strategy.Registry,
	sink store.ResultSink,
	renderer Renderer,
	defaults Defaults,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		data:       data,
		strategies: strategies,
		sink:       sink,
		renderer:   renderer,
		risk:       engine.NewRiskManager(engine.DefaultMaxOpenPositions, engine.DefaultMinConfidence),
		defaults:   defaults,
		log:        log.With("component", "backtest"),
		now:        time.Now,
	}
}

// Strategies returns the registry the engine resolves strategy names in.
func (e *Engine) Strategies() *strategy.Registry { return e.strategies }

// Defaults returns the values applied to unset request fields.
func (e *Engine) Defaults() Defaults { return e.defaults }

// normalize applies defaults and validates req.
func (e *Engine) normalize(req Request) (Request, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Timeframe == "" {
		req.Timeframe = e.defaults.Timeframe
	}
	if req.Strategy == "" {
		req.Strategy = e.defaults.Strategy
	}
	if req.InitialBalance.IsZero() {
		req.InitialBalance = e.defaults.InitialBalance
	}
	if req.RiskPerTrade.IsZero() {
		req.RiskPerTrade = e.defaults.RiskPerTrade
	}

	if req.Symbol == "" {
		return req, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if !req.InitialBalance.IsPositive() {
		return req, fmt.Errorf("%w: initial balance %s must be positive", ErrInvalidRequest, req.InitialBalance)
	}
	if !req.RiskPerTrade.IsPositive() || req.RiskPerTrade.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return req, fmt.Errorf("%w: risk per trade %s must be in (0, 1)", ErrInvalidRequest, req.RiskPerTrade)
	}
	tf, err := feed.CanonicalTimeframe(req.Timeframe)
	if err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Timeframe = tf
	if req.Start.IsZero() || req.End.IsZero() {
		return req, fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if req.Start.After(req.End) {
		return req, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly))
	}
	return req, nil
}

// Run fetches the bars for req, replays them through the requested
// strategy and returns the result. When the sink fails the complete result
// is returned together with an error wrapping ErrPersistenceFailed.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	req, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	strat, ok := e.strategies.Get(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownStrategy, req.Strategy,
			strings.Join(e.strategies.List(), ", "))
	}

	log := e.log.With("symbol", req.Symbol, "timeframe", req.Timeframe, "strategy", req.Strategy)

	bars, err := e.data.FetchBars(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDataFetch, req.Symbol, err)
	}
	if len(bars) < WarmupBars {
		return nil, fmt.Errorf("%w: %d bars for %s, need at least %d", ErrInsufficientData, len(bars), req.Symbol, WarmupBars)
	}

	log.Info("backtest started", "bars", len(bars), "start", req.Start, "end", req.End)
	started := e.now()

	r := &run{
		eng:      e,
		req:      req,
		strategy: strat,
		bars:     bars,
		balance:  req.InitialBalance,
		log:      log,
	}
	if err := r.replay(ctx); err != nil {
		return nil, err
	}
	result := r.result(uuid.NewString(), e.now())

	log.Info("backtest finished",
		"id", result.ID,
		"trades", result.Stats.TotalTrades,
		"final_balance", result.FinalBalance.StringFixed(2),
		"return_pct", result.Stats.TotalReturnPercentage,
		"elapsed", e.now().Sub(started),
	)

	if e.sink != nil {
		if _, err := e.sink.SaveResult(ctx, result); err != nil {
			log.Error("persisting backtest failed", "id", result.ID, "error", err)
			return result, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
	}
	return result, nil
}

// run holds the mutable state of one backtest.
type run struct {
	eng      *Engine
	req      Request
	strategy strategy.Strategy
	bars     []domain.Bar
	log      *slog.Logger

	balance  decimal.Decimal
	open     []*domain.Position
	trades   []domain.Position
	equity   []domain.EquityPoint
	analysis []domain.AnalysisRecord
	final    decimal.Decimal
}

func (r *run) replay(ctx context.Context) error {
	r.equity = append(r.equity, domain.EquityPoint{Timestamp: r.bars[0].Timestamp, Balance: r.balance})

	for i := WarmupBars; i < len(r.bars); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bar := r.bars[i]

		var closed []*domain.Position
		r.open, closed = engine.UpdateOpenPositions(r.open, bar, r.balance)
		for _, p := range closed {
			r.trades = append(r.trades, *p)
		}

		if err := r.decide(ctx, i); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrSizing) {
				r.log.Warn("position not opened", "bar", bar.Timestamp, "error", err)
			} else {
				r.log.Warn("no decision for bar", "bar", bar.Timestamp, "error", err)
			}
		}

		for _, p := range closed {
			r.balance = r.balance.Add(p.PnL())
		}
		r.equity = append(r.equity, domain.EquityPoint{Timestamp: bar.Timestamp, Balance: r.balance})
	}

	// Liquidate whatever is still open at the last close. The percentage is
	// taken against a zero balance and so comes out as NaN.
	last := r.bars[len(r.bars)-1]
	r.final = r.balance
	for _, p := range r.open {
		engine.ClosePosition(p, decimal.NewFromFloat(last.Close), last.Timestamp, domain.ExitEndOfBacktest, decimal.Zero)
		r.trades = append(r.trades, *p)
		r.final = r.final.Add(p.PnL())
	}
	r.open = nil
	return nil
}

// decide asks the strategy about bar i and opens a position when the
// decision passes the risk gate.
func (r *run) decide(ctx context.Context, i int) error {
	bar := r.bars[i]
	// Capped so a collaborator appending to its window cannot write into
	// the bars that follow.
	window := r.bars[i-WarmupBars : i+1 : i+1]

	var artifact []byte
	if r.eng.renderer != nil {
		a, err := r.eng.renderer.Render(ctx, r.req.Symbol, window)
		if err != nil {
			return fmt.Errorf("rendering: %w", err)
		}
		artifact = a
	}

	positions := make([]domain.Position, len(r.open))
	for j, p := range r.open {
		positions[j] = *p
	}
	d, err := r.strategy.Decide(ctx, strategy.DecisionRequest{
		Symbol:    r.req.Symbol,
		Timeframe: r.req.Timeframe,
		Balance:   r.balance,
		Positions: positions,
		Window:    window,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecision, err)
	}
	if !d.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrDecision, d.Action)
	}
	r.analysis = append(r.analysis, domain.AnalysisRecord{Timestamp: bar.Timestamp, Decision: d, Artifact: artifact})

	if !r.eng.risk.AllowEntry(len(r.open), d) {
		return nil
	}
	p, err := engine.ExecutePosition(r.req.Symbol, d, bar, r.balance, r.req.RiskPerTrade)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	r.open = append(r.open, p)
	r.log.Info("position opened",
		"bar", bar.Timestamp,
		"side", p.Side,
		"entry", p.EntryPrice,
		"stop", p.StopLoss,
		"target", p.TakeProfit,
		"size", p.Size,
		"confidence", d.Confidence,
	)
	return nil
}

func (r *run) result(id string, createdAt time.Time) *domain.BacktestResult {
	trades := r.trades
	if trades == nil {
		trades = []domain.Position{}
	}
	return &domain.BacktestResult{
		ID:              id,
		Symbol:          r.req.Symbol,
		Timeframe:       r.req.Timeframe,
		Strategy:        r.req.Strategy,
		StartDate:       r.req.Start,
		EndDate:         r.req.End,
		InitialBalance:  r.req.InitialBalance,
		FinalBalance:    r.final,
		RiskPerTrade:    r.req.RiskPerTrade,
		Stats:           CalculateStatistics(trades, r.req.InitialBalance, r.final, r.equity),
		Trades:          trades,
		EquityCurve:     r.equity,
		AnalysisHistory: r.analysis,
		CreatedAt:       createdAt,
	}
}

// IsClientError reports whether err was caused by the request rather than
// by the engine or its collaborators.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrInsufficientData)
}
