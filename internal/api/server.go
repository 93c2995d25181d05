// Package api exposes strategies as a remote decision oracle over gRPC and
// provides the matching client.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"chartist/internal/strategy"
)

// Server hosts the DecisionService on a gRPC listener.
type Server struct {
	addr string
	gs   *grpc.Server
	log  *slog.Logger
}

// NewServer creates a Server listening on addr that serves the strategies
// in registry, answering unnamed requests with defaultStrategy.
func NewServer(addr string, registry *strategy.Registry, defaultStrategy string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "decision-server")
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	NewDecisionServer(registry, defaultStrategy, log).RegisterGRPC(gs)
	return &Server{addr: addr, gs: gs, log: log}
}

// ListenAndServe starts the gRPC listener and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("decision service listening", "addr", lis.Addr().String())
		errCh <- s.gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down decision service")
		s.gs.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
