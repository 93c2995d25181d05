package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"chartist/internal/config"
	"chartist/internal/domain"
	"chartist/internal/store"
	"chartist/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// barsClient is the subset of *marketdata.Client used here.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider fetches bars from the Alpaca market-data API. Requests are
// rate limited and retried, and fetched bars are optionally archived to a
// BarStore on the way through.
type AlpacaProvider struct {
	client     barsClient
	feed       marketdata.Feed
	limiter    *util.RateLimiter
	maxRetries int
	retryDelay time.Duration
	archive    store.BarStore
	log        *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider from the Alpaca section of the
// configuration. archive may be nil.
func NewAlpacaProvider(cfg config.Alpaca, archive store.BarStore) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return newAlpacaProvider(marketdata.NewClient(opts), cfg, archive)
}

func newAlpacaProvider(client barsClient, cfg config.Alpaca, archive store.BarStore) *AlpacaProvider {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &AlpacaProvider{
		client:     client,
		feed:       marketdata.Feed(cfg.Feed),
		limiter:    util.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst),
		maxRetries: maxRetries,
		retryDelay: time.Second,
		archive:    archive,
		log:        slog.Default().With("component", "alpaca-feed"),
	}
}

// FetchBars fetches split-adjusted bars for symbol in [start, end].
func (p *AlpacaProvider) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	tf, canonical, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	var raw []marketdata.Bar
	err = util.Retry(ctx, p.maxRetries, p.retryDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var gerr error
		raw, gerr = p.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Adjustment: marketdata.Split,
			Start:      start,
			End:        end,
			Feed:       p.feed,
		})
		if gerr != nil {
			p.log.Warn("GetBars failed", "symbol", symbol, "timeframe", canonical, "error", gerr)
		}
		return gerr
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s %s: %w", symbol, canonical, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}

	if p.archive != nil && len(bars) > 0 {
		// Archiving is best effort; the run still has its bars.
		if err := p.archive.WriteBars(ctx, canonical, bars); err != nil {
			p.log.Warn("archiving bars failed", "symbol", symbol, "timeframe", canonical, "error", err)
		}
	}

	p.log.Debug("fetched bars", "symbol", symbol, "timeframe", canonical, "count", len(bars))
	return bars, nil
}
