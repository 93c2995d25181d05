// Package store defines storage interfaces for the bar archive and for
// finished backtest results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"chartist/internal/domain"
)

// ErrNotFound is returned when a backtest id does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars of one timeframe to storage.
	WriteBars(ctx context.Context, timeframe string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and timeframe within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols archived for a timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}

// ResultSink persists a finished backtest.
type ResultSink interface {
	// SaveResult writes the backtest row, its trades, analysis history and
	// equity curve atomically and returns the backtest id.
	SaveResult(ctx context.Context, r *domain.BacktestResult) (string, error)
}

// ResultStore is a ResultSink that can also read results back.
type ResultStore interface {
	ResultSink

	// GetBacktest returns the summary row for id. Trades, equity curve and
	// analysis history are left empty.
	GetBacktest(ctx context.Context, id string) (*domain.BacktestResult, error)

	// ListBacktests returns summaries newest first, optionally filtered by
	// symbol. A limit <= 0 means no limit.
	ListBacktests(ctx context.Context, symbol string, limit int) ([]domain.BacktestResult, error)

	// ListTrades returns the trade log of a backtest in close order.
	ListTrades(ctx context.Context, id string) ([]domain.Position, error)

	// ListEquityCurve returns the equity curve of a backtest.
	ListEquityCurve(ctx context.Context, id string) ([]domain.EquityPoint, error)

	// ListAnalysis returns the analysis history of a backtest.
	ListAnalysis(ctx context.Context, id string) ([]domain.AnalysisRecord, error)
}
