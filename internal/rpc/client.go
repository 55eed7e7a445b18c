package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region client-struct
// Client wraps the gRPC connection to a resolver server.
type Client struct {
	conn   *grpc.ClientConn
	client ResolverServiceClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to a resolver server.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewResolverServiceClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service
// implementation. Used for testing without a real gRPC connection.
func NewClientWithService(svc ResolverServiceClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region resolve
// Resolve sends a session snapshot to the server and returns its layout.
func (c *Client) Resolve(ctx context.Context, snap session.Snapshot, req resolver.Request) (Reply, error) {
	in, err := toStruct(RequestPayload{Session: snap, Request: optionsFrom(req)})
	if err != nil {
		return Reply{}, err
	}
	out, err := c.client.Resolve(ctx, in)
	if err != nil {
		return Reply{}, fmt.Errorf("resolve rpc: %w", err)
	}
	var reply Reply
	if err := fromStruct(out, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// #endregion resolve
