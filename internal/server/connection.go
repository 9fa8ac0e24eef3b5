package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stratlink/internal/protocol"
)

// a peer that stops reading must not pin a goroutine in Write forever
const writeTimeout = 10 * time.Second

// connection serves one accepted socket: read a frame, dispatch, reply,
// repeat. Requests on the same connection are handled strictly in order.
type connection struct {
	ID      string // unique identifier = key in the manager map
	conn    net.Conn
	server  *Server
	limiter *rate.Limiter // nil when rate limiting is off
	ctx     context.Context
	cancel  context.CancelFunc
}

func newConnection(conn net.Conn, s *Server) *connection {
	c := &connection{
		ID:     uuid.NewString(),
		conn:   conn,
		server: s,
	}
	if s.opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	}
	c.ctx, c.cancel = context.WithCancel(s.ctx)
	return c
}

func (c *connection) serve() {
	defer c.cancel()
	defer c.conn.Close()

	logger := c.server.logger.With("client_id", c.ID)
	logger.Info("client_connected",
		"remote_addr", c.conn.RemoteAddr().String(),
	)

	reader := bufio.NewReader(c.conn)
	for {
		if idle := c.server.opts.IdleTimeout; idle > 0 {
			c.conn.SetReadDeadline(time.Now().Add(idle))
		}

		req, err := protocol.ReadRequest(reader)
		var resp protocol.Response
		var reqErr *protocol.RequestError
		switch {
		case err == nil:
			c.server.requests.Add(1)
			resp = c.handle(req)
			logger.Debug("request_dispatched",
				"action", req.Action,
				"status", resp.Status,
			)
		case errors.As(err, &reqErr):
			// frame boundary is intact, reply and keep reading
			c.server.requests.Add(1)
			logger.Warn("invalid_request", "error", err)
			resp = protocol.ErrorResponse("%s", reqErr.Error())
		default:
			c.closeOnReadError(logger, err)
			return
		}

		if err := c.respond(resp); err != nil {
			logger.Warn("client_write_failed", "error", err)
			return
		}

		if c.server.stopping.Load() {
			logger.Info("client_closed_server_stopping")
			return
		}
	}
}

func (c *connection) handle(req protocol.Request) protocol.Response {
	if c.limiter != nil && !c.limiter.Allow() {
		return protocol.ErrorResponse("Rate limit exceeded")
	}
	return c.server.dispatcher.Dispatch(c.ctx, req)
}

// closeOnReadError logs why the loop ends and, when the peer sent something
// unparseable, makes one best-effort attempt to tell it why.
func (c *connection) closeOnReadError(logger *slog.Logger, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, protocol.ErrConnectionClosed):
		logger.Info("client_disconnected")
	case errors.Is(err, protocol.ErrMalformedLength), errors.Is(err, protocol.ErrMalformedPayload):
		logger.Warn("client_framing_error", "error", err)
		_ = c.respond(protocol.ErrorResponse("%s", err.Error())) // failure here is ignored
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Warn("client_idle_timeout")
	default:
		logger.Warn("client_read_error", "error", err)
	}
}

func (c *connection) respond(resp protocol.Response) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := protocol.WriteMessage(c.conn, resp)
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		err = protocol.WriteMessage(c.conn, protocol.ErrorResponse("response too large"))
	}
	return err
}

func (c *connection) Close() {
	c.conn.Close()
}
