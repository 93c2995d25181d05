// Package feed supplies historical bars to the backtest engine, either from
// the Alpaca market-data API or from the local Parquet archive.
package feed

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"chartist/internal/domain"
)

// Provider returns historical bars for one symbol, oldest first.
type Provider interface {
	FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)
}

var timeframeRe = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

// ParseTimeframe accepts Alpaca-style timeframes ("1Day", "15Min", "4Hour")
// and common short forms ("1d", "15m", "4h", "1w", "day") and returns the
// Alpaca timeframe together with its canonical spelling.
func ParseTimeframe(s string) (marketdata.TimeFrame, string, error) {
	m := timeframeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return marketdata.TimeFrame{}, "", fmt.Errorf("invalid timeframe %q", s)
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil || v < 1 {
			return marketdata.TimeFrame{}, "", fmt.Errorf("invalid timeframe %q", s)
		}
		n = v
	}

	var unit marketdata.TimeFrameUnit
	switch strings.ToLower(m[2]) {
	case "t", "m", "min", "mins", "minute", "minutes":
		unit = marketdata.Min
	case "h", "hour", "hours":
		unit = marketdata.Hour
	case "d", "day", "days":
		unit = marketdata.Day
	case "w", "week", "weeks":
		unit = marketdata.Week
	case "mo", "month", "months":
		unit = marketdata.Month
	default:
		return marketdata.TimeFrame{}, "", fmt.Errorf("invalid timeframe unit in %q", s)
	}

	// Alpaca's limits per unit.
	switch {
	case unit == marketdata.Min && n > 59,
		unit == marketdata.Hour && n > 23,
		unit == marketdata.Day && n > 1,
		unit == marketdata.Week && n > 1,
		unit == marketdata.Month && n != 1 && n != 2 && n != 3 && n != 4 && n != 6 && n != 12:
		return marketdata.TimeFrame{}, "", fmt.Errorf("unsupported timeframe %q", s)
	}

	tf := marketdata.NewTimeFrame(n, unit)
	return tf, fmt.Sprintf("%d%s", n, unit), nil
}

// CanonicalTimeframe returns the canonical spelling of s.
func CanonicalTimeframe(s string) (string, error) {
	_, c, err := ParseTimeframe(s)
	return c, err
}
