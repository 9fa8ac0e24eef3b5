package client

// client.go = one-shot command sender for the strategy server.

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"stratlink/internal/protocol"
)

const DefaultTimeout = 10 * time.Second

// Client sends commands to a strategy server. Each call opens its own
// connection, so a Client is safe for concurrent use.
type Client struct {
	Addr    string
	Timeout time.Duration // dial + round trip; DefaultTimeout when zero
}

// New creates a client for host:port.
func New(host string, port int, timeout time.Duration) *Client {
	return &Client{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout: timeout,
	}
}

// StatusError is returned when the server answers with status "error".
type StatusError struct {
	Message string
}

func (e *StatusError) Error() string {
	return "server error: " + e.Message
}

// Do sends one request and waits for its response. If the server answers
// with status "error" the decoded response is returned together with a
// *StatusError.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	// unblock any pending I/O once ctx is done, whether by timeout or cancel
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := protocol.WriteMessage(conn, req); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Response{}, fmt.Errorf("send %s: %w", req.Action, ctxErr)
		}
		return protocol.Response{}, fmt.Errorf("send %s: %w", req.Action, err)
	}

	var resp protocol.Response
	if err := protocol.Decode(conn, &resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Response{}, fmt.Errorf("read response: %w", ctxErr)
		}
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	if !resp.OK() {
		return resp, &StatusError{Message: resp.Message}
	}
	return resp, nil
}

// Apply sends apply_strategy with data.
func (c *Client) Apply(ctx context.Context, data map[string]any) (protocol.Response, error) {
	return c.Do(ctx, protocol.Request{Action: protocol.ActionApplyStrategy, Data: data})
}

// Stop sends stop_strategy with data.
func (c *Client) Stop(ctx context.Context, data map[string]any) (protocol.Response, error) {
	return c.Do(ctx, protocol.Request{Action: protocol.ActionStopStrategy, Data: data})
}
