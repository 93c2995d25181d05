package chartist

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL).WithHTTPClient(srv.Client())
}

func TestRunBacktest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/backtests", func(w http.ResponseWriter, r *http.Request) {
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Symbol != "AAPL" || req.StartDate != "2024-01-01" || !req.RiskPerTrade.Equal(decimal.RequireFromString("0.02")) {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":{"id":"bt-1","symbol":"AAPL","final_balance":"101250.5",
			"stats":{"total_trades":2,"profit_factor":"Infinity"},
			"trades":[{"symbol":"AAPL","exit":{"reason":"end_of_backtest","pnl":"0","pnl_percentage":null}}]}}`))
	})
	c := newTestClient(t, mux)

	resp, err := c.RunBacktest(context.Background(), RunRequest{
		Symbol:       "AAPL",
		StartDate:    "2024-01-01",
		EndDate:      "2024-06-30",
		RiskPerTrade: decimal.RequireFromString("0.02"),
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	res := resp.Result
	if res.ID != "bt-1" || !res.FinalBalance.Equal(decimal.RequireFromString("101250.5")) {
		t.Errorf("result = %+v", res)
	}
	if !math.IsInf(res.Stats.ProfitFactor.Float(), 1) {
		t.Errorf("profit factor = %v, want +Inf", res.Stats.ProfitFactor)
	}
	if !math.IsNaN(res.Trades[0].Exit.PnLPercentage.Float()) {
		t.Errorf("pnl percentage = %v, want NaN", res.Trades[0].Exit.PnLPercentage)
	}
}

func TestAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/backtests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"backtest ` + r.PathValue("id") + `: not found"}}`))
	})
	mux.HandleFunc("GET /api/v1/strategies", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.GetBacktest(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "NOT_FOUND" || apiErr.Message != "backtest nope: not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	_, err = c.ListStrategies(context.Background())
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Code != "" || apiErr.Message != "upstream exploded" {
		t.Errorf("plain-text apiErr = %+v", apiErr)
	}
}

func TestListBacktestsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/backtests", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "MSFT" {
			t.Errorf("symbol = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "7" {
			t.Errorf("limit = %q", got)
		}
		w.Write([]byte(`{"backtests":[{"id":"b"},{"id":"a"}],"count":2}`))
	})
	c := newTestClient(t, mux)

	list, err := c.ListBacktests(context.Background(), "MSFT", 7)
	if err != nil {
		t.Fatalf("ListBacktests: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Errorf("list = %+v", list)
	}
}

func TestResultDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/backtests/bt-9/trades", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":"bt-9","trades":[{"symbol":"X","side":"short","size":10}]}`))
	})
	mux.HandleFunc("GET /api/v1/backtests/bt-9/equity", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":"bt-9","equity_curve":[{"balance":"100"},{"balance":"99.5"}]}`))
	})
	mux.HandleFunc("GET /api/v1/backtests/bt-9/analysis", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":"bt-9","analysis_history":[{"analysis_result":{"action":"hold","confidence":40}}]}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	trades, err := c.ListTrades(ctx, "bt-9")
	if err != nil || len(trades) != 1 || trades[0].Size != 10 {
		t.Errorf("trades = %+v, %v", trades, err)
	}
	curve, err := c.ListEquityCurve(ctx, "bt-9")
	if err != nil || len(curve) != 2 || !curve[1].Balance.Equal(decimal.RequireFromString("99.5")) {
		t.Errorf("curve = %+v, %v", curve, err)
	}
	history, err := c.ListAnalysis(ctx, "bt-9")
	if err != nil || len(history) != 1 || history[0].Decision.Confidence != 40 {
		t.Errorf("history = %+v, %v", history, err)
	}
}
