package rpc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// Client is a JSON-RPC client for the support desk.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the RPC server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc server: %w", err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(ctx context.Context, method string, args, reply interface{}) error {
	call := c.rpc.Go(ServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return fmt.Errorf("rpc %s failed: %w", method, call.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMessage runs a message through the remote pipeline.
func (c *Client) SendMessage(ctx context.Context, args SendMessageArgs) (*domain.SendMessageResponse, error) {
	var resp domain.SendMessageResponse
	if err := c.call(ctx, "SendMessage", &args, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Classify asks the remote router where a message would go.
func (c *Client) Classify(ctx context.Context, message string) (*ClassifyReply, error) {
	var resp ClassifyReply
	if err := c.call(ctx, "Classify", &ClassifyArgs{Message: message}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAgents fetches the remote agent catalogue.
func (c *Client) ListAgents(ctx context.Context) (*ListAgentsReply, error) {
	var resp ListAgentsReply
	if err := c.call(ctx, "ListAgents", &ListAgentsArgs{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
