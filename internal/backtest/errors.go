package backtest

import (
	"errors"

	"chartist/internal/engine"
)

var (
	// ErrInvalidRequest is returned for a malformed request: no symbol, a
	// non-positive balance, a risk fraction outside (0, 1) or an unknown
	// timeframe.
	ErrInvalidRequest = errors.New("invalid backtest request")
	// ErrInvalidRange is returned when the start date is after the end date.
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrUnknownStrategy is returned when the requested strategy is not
	// registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrInsufficientData is returned when fewer bars than the warm-up
	// period are available.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDataFetch wraps a failure of the data provider.
	ErrDataFetch = errors.New("data fetch failed")
	// ErrDecision wraps a failed or malformed strategy decision. It never
	// aborts a run.
	ErrDecision = errors.New("decision failed")
	// ErrPersistenceFailed is returned alongside a complete result when the
	// result sink could not store it.
	ErrPersistenceFailed = errors.New("persisting result failed")
	// ErrSizing is returned by position sizing. It never aborts a run.
	ErrSizing = engine.ErrSizing
)
