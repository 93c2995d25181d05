package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"chartist/internal/domain"
)

// BatchRequest runs the same parameters over several symbols.
type BatchRequest struct {
	Symbols []string `json:"symbols"`
	Request
}

// BatchItem is the outcome of one symbol of a batch. Exactly one of Result
// and Error is set, except after a persistence failure where both are.
type BatchItem struct {
	Symbol string                 `json:"symbol"`
	Result *domain.BacktestResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Err    error                  `json:"-"`
}

// RunBatch runs one independent backtest per symbol, at most
// Defaults.BatchWorkers at a time. Per-symbol failures are reported in the
// items; the returned error is non-nil only for an empty request or a
// cancelled context. Items keep the order of req.Symbols.
func (e *Engine) RunBatch(ctx context.Context, req BatchRequest) ([]BatchItem, error) {
	symbols := make([]string, 0, len(req.Symbols))
	seen := make(map[string]bool, len(req.Symbols))
	for _, s := range req.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidRequest)
	}

	workers := e.defaults.BatchWorkers
	if workers < 1 {
		workers = 1
	}

	items := make([]BatchItem, len(symbols))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, sym := range symbols {
		g.Go(func() error {
			r := req.Request
			r.Symbol = sym
			res, err := e.Run(ctx, r)
			items[i] = BatchItem{Symbol: sym, Result: res, Err: err}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return items, err
	}
	failed := 0
	for _, it := range items {
		if it.Err == nil {
			continue
		}
		failed++
		level := slog.LevelWarn
		if IsClientError(it.Err) {
			level = slog.LevelInfo
		}
		e.log.Log(ctx, level, "batch item failed", "symbol", it.Symbol, "error", it.Err)
	}
	e.log.Info("batch finished", "symbols", len(symbols), "failed", failed, "workers", workers)
	return items, nil
}
