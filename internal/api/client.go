package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chartist/internal/domain"
	"chartist/internal/strategy"
)

// RemoteStrategyName is the registry name of a DecisionClient.
const RemoteStrategyName = "remote"

var _ strategy.Strategy = (*DecisionClient)(nil)

// DecisionClient is a strategy.Strategy backed by a remote DecisionServer.
type DecisionClient struct {
	conn   *grpc.ClientConn
	remote string
	name   string
}

// NewDecisionClient creates a client targeting the given gRPC address.
// remoteStrategy selects the strategy on the server; empty uses the server
// default. Extra dial options are appended to the defaults.
func NewDecisionClient(addr, remoteStrategy string, opts ...grpc.DialOption) (*DecisionClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &DecisionClient{conn: conn, remote: remoteStrategy, name: RemoteStrategyName}, nil
}

// Name returns "remote".
func (c *DecisionClient) Name() string { return c.name }

// Decide forwards the request to the remote service.
func (c *DecisionClient) Decide(ctx context.Context, req strategy.DecisionRequest) (domain.Decision, error) {
	var resp DecideResponse
	if err := c.conn.Invoke(ctx, methodDecide, &DecideRequest{Strategy: c.remote, Request: req}, &resp); err != nil {
		return domain.Decision{}, err
	}
	return resp.Decision, nil
}

// ListStrategies asks the remote service which strategies it serves.
func (c *DecisionClient) ListStrategies(ctx context.Context) (*ListStrategiesResponse, error) {
	var resp ListStrategiesResponse
	if err := c.conn.Invoke(ctx, methodListStrategies, &ListStrategiesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close closes the underlying connection.
func (c *DecisionClient) Close() error {
	return c.conn.Close()
}
