package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"stratlink/internal/protocol"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9999

	// how long an over-capacity client gets to send its request before it
	// is told the server is busy
	busyReadTimeout = 2 * time.Second
)

// Options tune the optional hardening knobs. The zero value matches the
// plain behavior: no idle timeout, no connection cap, no rate limit.
type Options struct {
	// IdleTimeout closes a connection that does not complete a frame in time.
	IdleTimeout time.Duration
	// MaxConnections caps concurrently served connections; extra
	// connections get a "Server busy" error response and are closed.
	MaxConnections int64
	// RateLimit is the per-connection request rate (requests/second).
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
}

// Stats is a point-in-time view of the server's activity.
type Stats struct {
	ActiveConnections int
	RequestsTotal     uint64
	Uptime            time.Duration
}

// Server accepts connections and hands each one to its own goroutine.
type Server struct {
	opts       Options
	dispatcher *Dispatcher
	manager    *ConnectionManager
	logger     *slog.Logger
	slots      *semaphore.Weighted // nil when unbounded

	// ctx is the parent of every connection context, cancelled when
	// Shutdown gives up waiting
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	startedAt time.Time

	stopping atomic.Bool // set under mu so Listen/Serve cannot race Stop
	stopOnce sync.Once
	wg       sync.WaitGroup // the accept loop plus one per connection goroutine
	requests atomic.Uint64
}

func New(dispatcher *Dispatcher, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}

	s := &Server{
		opts:       opts,
		dispatcher: dispatcher,
		manager:    NewConnectionManager(opts.Logger),
		logger:     opts.Logger,
	}
	if opts.MaxConnections > 0 {
		s.slots = semaphore.NewWeighted(opts.MaxConnections)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start binds host:port and serves until Stop is called. It returns a
// *BindError if the address is unavailable and nil after a clean Stop.
func (s *Server) Start(host string, port int) error {
	if err := s.Listen(host, port); err != nil {
		return err
	}
	if err := s.Serve(); !errors.Is(err, ErrServerClosed) {
		return err
	}
	return nil
}

// Listen binds the listening socket. Port 0 picks an ephemeral port; see
// Addr. On Unix net.Listen already sets SO_REUSEADDR, so a restarted server
// can rebind while old connections sit in TIME_WAIT.
// A server that has been stopped cannot listen again: Listen returns
// ErrServerClosed.
func (s *Server) Listen(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping.Load() {
		return ErrServerClosed
	}
	if s.listener != nil {
		return &BindError{Addr: addr, Err: errors.New("server already listening")}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	s.listener = ln
	s.startedAt = time.Now()

	s.logger.Info("server_listening",
		"addr", ln.Addr().String(),
		"idle_timeout", s.opts.IdleTimeout.String(),
		"max_connections", s.opts.MaxConnections,
		"rate_limit", s.opts.RateLimit,
	)
	return nil
}

// Serve runs the accept loop on the bound listener. It returns
// ErrServerClosed once Stop has been called, or the accept error that
// ended the loop otherwise.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	if s.stopping.Load() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if ln == nil {
		s.mu.Unlock()
		return errors.New("server: Serve called before Listen")
	}
	// registered before Stop can flip stopping, so Shutdown's Wait always
	// covers the accept loop and every connection it starts
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return ErrServerClosed
			}
			s.logger.Error("accept_failed", "error", err)
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(conn)
		}(conn)
	}
}

// handle connections/lifecycle of a single client connection
func (s *Server) handleConnection(conn net.Conn) {
	if s.slots != nil {
		if !s.slots.TryAcquire(1) {
			s.rejectBusy(conn)
			return
		}
		defer s.slots.Release(1)
	}

	client := newConnection(conn, s)
	s.manager.Add(client)
	defer s.manager.Remove(client)
	client.serve()
}

// rejectBusy reads the client's request so the reply is not lost to a
// reset, answers "Server busy" and closes.
func (s *Server) rejectBusy(conn net.Conn) {
	defer conn.Close()
	s.logger.Warn("server_busy_rejecting_client",
		"remote_addr", conn.RemoteAddr().String(),
		"max_connections", s.opts.MaxConnections,
	)

	conn.SetDeadline(time.Now().Add(busyReadTimeout))
	if _, err := protocol.ReadFrame(conn); err != nil && !protocol.IsFramingError(err) {
		return
	}
	_ = protocol.WriteMessage(conn, protocol.ErrorResponse("Server busy"))
}

// Stop makes the accept loop exit and releases the listening socket.
// Connections already being served are left to finish on their own; each
// one exits after its current request. Calling Stop more than once is safe,
// and a server stopped before Listen stays closed.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping.Store(true)
		ln := s.listener
		s.mu.Unlock()

		if ln != nil {
			// closing the listener unblocks Accept
			if err := ln.Close(); err != nil {
				s.logger.Warn("listener_close_failed", "error", err)
			}
		}
		s.logger.Info("server_stopped")
	})
}

// Shutdown stops the server and waits for the accept loop and connection
// goroutines to finish.
// If ctx expires first the remaining connections are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown_deadline_exceeded_closing_connections",
			"active_connections", s.manager.Count(),
		)
		s.cancel()
		s.manager.CloseAll()
		<-done
		return ctx.Err()
	}
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}
	return Stats{
		ActiveConnections: s.manager.Count(),
		RequestsTotal:     s.requests.Load(),
		Uptime:            uptime,
	}
}
