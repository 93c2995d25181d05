package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chartist/internal/backtest"
	"chartist/internal/store"
)

// recovery turns a panic into a 500 with the standard error envelope.
func recovery(log *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic serving request", "path", c.Request.URL.Path, "panic", fmt.Sprint(recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: CodeInternal, Message: "an unexpected error occurred"},
		})
	})
}

// requestLogger logs one line per request.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"elapsed", time.Since(start),
		)
	}
}

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, backtest.ErrInvalidRange):
		return http.StatusBadRequest, CodeInvalidRange
	case errors.Is(err, backtest.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, backtest.ErrUnknownStrategy):
		return http.StatusBadRequest, CodeUnknownStrategy
	case errors.Is(err, backtest.ErrInsufficientData):
		return http.StatusUnprocessableEntity, CodeInsufficientData
	case errors.Is(err, backtest.ErrDataFetch):
		return http.StatusBadGateway, CodeDataFetch
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCancelled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{Code: CodeInvalidRequest, Message: msg},
	})
}
