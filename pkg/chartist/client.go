// Package chartist is a Go client for the chartist-server HTTP API.
package chartist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chartist/internal/domain"
	"chartist/internal/httpapi"
)

// Re-exported wire types.
type (
	RunRequest         = httpapi.RunRequest
	BatchRunRequest    = httpapi.BatchRunRequest
	RunResponse        = httpapi.RunResponse
	BatchResponse      = httpapi.BatchResponse
	StrategiesResponse = httpapi.StrategiesResponse
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chartist: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client provides a Go SDK for interacting with the chartist-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chartist API client. Backtests run synchronously
// on the server, so the default timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var resp httpapi.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &resp)
}

// ListStrategies returns the strategies the server can run.
func (c *Client) ListStrategies(ctx context.Context) (*StrategiesResponse, error) {
	var resp StrategiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunBacktest runs a backtest and returns its result. A non-empty Warning
// in the response means the result was computed but not stored.
func (c *Client) RunBacktest(ctx context.Context, req RunRequest) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunBatch runs the same backtest over several symbols.
func (c *Client) RunBatch(ctx context.Context, req BatchRunRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBacktests returns stored backtest summaries, newest first. Empty
// symbol and zero limit use the server defaults.
func (c *Client) ListBacktests(ctx context.Context, symbol string, limit int) ([]domain.BacktestResult, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/backtests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp httpapi.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Backtests, nil
}

// GetBacktest returns the summary of one stored backtest.
func (c *Client) GetBacktest(ctx context.Context, id string) (*domain.BacktestResult, error) {
	var resp domain.BacktestResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTrades returns the trade log of a stored backtest.
func (c *Client) ListTrades(ctx context.Context, id string) ([]domain.Position, error) {
	var resp httpapi.TradesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id)+"/trades", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// ListEquityCurve returns the equity curve of a stored backtest.
func (c *Client) ListEquityCurve(ctx context.Context, id string) ([]domain.EquityPoint, error) {
	var resp httpapi.EquityResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id)+"/equity", nil, &resp); err != nil {
		return nil, err
	}
	return resp.EquityCurve, nil
}

// ListAnalysis returns the analysis history of a stored backtest.
func (c *Client) ListAnalysis(ctx context.Context, id string) ([]domain.AnalysisRecord, error) {
	var resp httpapi.AnalysisResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id)+"/analysis", nil, &resp); err != nil {
		return nil, err
	}
	return resp.AnalysisHistory, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope httpapi.ErrorResponse
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
