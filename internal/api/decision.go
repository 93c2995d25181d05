package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chartist/internal/domain"
	"chartist/internal/strategy"
)

const (
	serviceName          = "chartist.v1.DecisionService"
	methodDecide         = "/" + serviceName + "/Decide"
	methodListStrategies = "/" + serviceName + "/ListStrategies"
)

// DecideRequest asks the service for a decision from one strategy. An empty
// Strategy selects the server's default.
type DecideRequest struct {
	Strategy string                   `json:"strategy,omitempty"`
	Request  strategy.DecisionRequest `json:"request"`
}

// DecideResponse carries the decision and the strategy that produced it.
type DecideResponse struct {
	Strategy string          `json:"strategy"`
	Decision domain.Decision `json:"decision"`
}

// ListStrategiesRequest is empty.
type ListStrategiesRequest struct{}

// ListStrategiesResponse lists the strategies the service can run.
type ListStrategiesResponse struct {
	Strategies []string `json:"strategies"`
	Default    string   `json:"default"`
}

// decisionService is the handler type of the service descriptor.
type decisionService interface {
	Decide(context.Context, *DecideRequest) (*DecideResponse, error)
	ListStrategies(context.Context, *ListStrategiesRequest) (*ListStrategiesResponse, error)
}

var decisionServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*decisionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
		{MethodName: "ListStrategies", Handler: listStrategiesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chartist/v1/decision",
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DecideRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(decisionService).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDecide}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(decisionService).Decide(ctx, req.(*DecideRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listStrategiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListStrategiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(decisionService).ListStrategies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListStrategies}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(decisionService).ListStrategies(ctx, req.(*ListStrategiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// DecisionServer serves decisions from a strategy registry over gRPC.
type DecisionServer struct {
	registry        *strategy.Registry
	defaultStrategy string
	log             *slog.Logger
}

// NewDecisionServer creates a DecisionServer. defaultStrategy answers
// requests that do not name one.
func NewDecisionServer(registry *strategy.Registry, defaultStrategy string, log *slog.Logger) *DecisionServer {
	if log == nil {
		log = slog.Default()
	}
	return &DecisionServer{registry: registry, defaultStrategy: defaultStrategy, log: log}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *DecisionServer) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&decisionServiceDesc, s)
}

// Decide runs the requested strategy.
func (s *DecisionServer) Decide(ctx context.Context, in *DecideRequest) (*DecideResponse, error) {
	name := in.Strategy
	if name == "" {
		name = s.defaultStrategy
	}
	strat, ok := s.registry.Get(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown strategy %q", name)
	}
	if len(in.Request.Window) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty bar window")
	}

	d, err := strat.Decide(ctx, in.Request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		s.log.Warn("strategy failed", "strategy", name, "symbol", in.Request.Symbol, "error", err)
		return nil, status.Errorf(codes.Internal, "%s: %v", name, err)
	}
	return &DecideResponse{Strategy: name, Decision: d}, nil
}

// ListStrategies returns the registered strategy names.
func (s *DecisionServer) ListStrategies(_ context.Context, _ *ListStrategiesRequest) (*ListStrategiesResponse, error) {
	return &ListStrategiesResponse{Strategies: s.registry.List(), Default: s.defaultStrategy}, nil
}

// loggingInterceptor logs every unary call with its status code and
// latency.
func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelDebug
		if err != nil && !errors.Is(err, context.Canceled) && code != codes.NotFound {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", code.String(), "elapsed", time.Since(start))
		return resp, err
	}
}
