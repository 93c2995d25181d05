// Package httpapi serves backtests and their stored results over a JSON
// REST API.
package httpapi

import (
	"github.com/shopspring/decimal"

	"chartist/internal/backtest"
	"chartist/internal/domain"
)

// Error codes used in ErrorDetail.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeUnknownStrategy  = "UNKNOWN_STRATEGY"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeDataFetch        = "DATA_FETCH_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeCancelled        = "CANCELLED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// RunResponse is returned by POST /api/v1/backtests. Warning is set when
// the run finished but could not be stored.
type RunResponse struct {
	Result  *domain.BacktestResult `json:"result"`
	Warning string                 `json:"warning,omitempty"`
}

// BatchResponse is returned by POST /api/v1/backtests/batch.
type BatchResponse struct {
	Items     []backtest.BatchItem `json:"items"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

// ListResponse is returned by GET /api/v1/backtests.
type ListResponse struct {
	Backtests []domain.BacktestResult `json:"backtests"`
	Count     int                     `json:"count"`
}

// TradesResponse is returned by GET /api/v1/backtests/:id/trades.
type TradesResponse struct {
	ID     string            `json:"id"`
	Trades []domain.Position `json:"trades"`
}

// EquityResponse is returned by GET /api/v1/backtests/:id/equity.
type EquityResponse struct {
	ID          string               `json:"id"`
	EquityCurve []domain.EquityPoint `json:"equity_curve"`
}

// AnalysisResponse is returned by GET /api/v1/backtests/:id/analysis.
type AnalysisResponse struct {
	ID              string                  `json:"id"`
	AnalysisHistory []domain.AnalysisRecord `json:"analysis_history"`
}

// StrategiesResponse is returned by GET /api/v1/strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
	Default    string   `json:"default"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunRequest is the body of POST /api/v1/backtests. Dates are
// "2006-01-02" or RFC 3339. Omitted fields take the server defaults.
type RunRequest struct {
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe,omitempty"`
	StartDate      string          `json:"start_date" binding:"required"`
	EndDate        string          `json:"end_date" binding:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance,omitempty"`
	RiskPerTrade   decimal.Decimal `json:"risk_per_trade,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
}

// BatchRunRequest is the body of POST /api/v1/backtests/batch. The Symbol
// field of the embedded request is ignored.
type BatchRunRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
	RunRequest
}
