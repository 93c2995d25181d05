package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"chartist/internal/backtest"
	"chartist/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Server serves the backtest API.
type Server struct {
	engine  *backtest.Engine
	results store.ResultStore
	log     *slog.Logger
	handler http.Handler
}

// NewServer creates a Server running backtests on eng and reading stored
// results from results. corsOrigins lists the allowed browser origins; an
// empty list allows any origin.
func NewServer(eng *backtest.Engine, results store.ResultStore, corsOrigins []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine:  eng,
		results: results,
		log:     log.With("component", "httpapi"),
	}

	router := gin.New()
	router.Use(recovery(s.log), requestLogger(s.log))
	s.RegisterRoutes(router)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: CodeNotFound, Message: "no route for " + c.Request.URL.Path},
		})
	})

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
	return s
}

// RegisterRoutes registers all API routes on the given router.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", s.handleHealth)

	api := r.Group("/api/v1")
	api.GET("/strategies", s.handleStrategies)
	api.POST("/backtests", s.handleRun)
	api.POST("/backtests/batch", s.handleBatch)
	api.GET("/backtests", s.handleList)
	api.GET("/backtests/:id", s.handleGet)
	api.GET("/backtests/:id/trades", s.handleTrades)
	api.GET("/backtests/:id/equity", s.handleEquity)
	api.GET("/backtests/:id/analysis", s.handleAnalysis)
}

// Handler returns the root HTTP handler, CORS included.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http on %s: %w", addr, err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, StrategiesResponse{
		Strategies: s.engine.Strategies().List(),
		Default:    s.engine.Defaults().Strategy,
	})
}

func (s *Server) handleRun(c *gin.Context) {
	var body RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	result, err := s.engine.Run(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, RunResponse{Result: result})
	case errors.Is(err, backtest.ErrPersistenceFailed) && result != nil:
		c.JSON(http.StatusOK, RunResponse{Result: result, Warning: err.Error()})
	default:
		writeError(c, err)
	}
}

func (s *Server) handleBatch(c *gin.Context) {
	var body BatchRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	req, err := body.RunRequest.toRequest()
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	items, err := s.engine.RunBatch(c.Request.Context(), backtest.BatchRequest{Symbols: body.Symbols, Request: req})
	if err != nil {
		writeError(c, err)
		return
	}
	resp := BatchResponse{Items: items}
	for _, it := range items {
		if it.Result != nil && it.Err == nil {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleList(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(c, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := s.results.ListBacktests(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Backtests: list, Count: len(list)})
}

func (s *Server) handleGet(c *gin.Context) {
	r, err := s.results.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleTrades(c *gin.Context) {
	id := c.Param("id")
	trades, err := s.results.ListTrades(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TradesResponse{ID: id, Trades: trades})
}

func (s *Server) handleEquity(c *gin.Context) {
	id := c.Param("id")
	curve, err := s.results.ListEquityCurve(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, EquityResponse{ID: id, EquityCurve: curve})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	id := c.Param("id")
	records, err := s.results.ListAnalysis(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnalysisResponse{ID: id, AnalysisHistory: records})
}

// toRequest parses the dates of a RunRequest.
func (r RunRequest) toRequest() (backtest.Request, error) {
	start, err := parseDate(r.StartDate, false)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDate(r.EndDate, true)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("end_date: %w", err)
	}
	return backtest.Request{
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		Start:          start,
		End:            end,
		InitialBalance: r.InitialBalance,
		RiskPerTrade:   r.RiskPerTrade,
		Strategy:       r.Strategy,
	}, nil
}

// parseDate accepts "2006-01-02" or RFC 3339. A bare date means midnight
// UTC, or the last instant of that day when endOfDay is set.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}
