// Package cloudvm provides an embedded, concurrent HTTP engine: a listening socket with its
// own accept loop, a fixed worker pool that serves one connection per task, a raw request
// parser and response serializer, and a path-pattern router with ordered, short-circuiting
// middleware chains.
//
// The engine knows nothing about storage or credentials. Business logic is registered as
// handler and middleware values and reaches its collaborators through closures.
//
// Key Features:
//   - Fixed-size worker pool draining one FIFO queue; shutdown drains what is queued
//   - Raw socket setup with a configurable listen backlog
//   - First-match-wins routing over literal and ":name" segments
//   - Global and route-scoped middleware that can stop the chain
//   - Handler panics and errors become 500 responses; the worker survives
//   - One request and one response per connection
//
// Example usage:
//
//	router := cloudvm.NewRouter()
//	router.RegisterRoute(cloudvm.Get, "/health", func(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
//	    res.Json(`{"status": "ok"}`)
//	    return nil
//	})
//	server := cloudvm.NewServer("0.0.0.0", 5001, router)
//	if err := server.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop()
package cloudvm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultBacklog     = 128
	DefaultWorkerCount = 8
	DefaultReadTimeout = 10 * time.Second
)

// RequestObserver is notified after every response has been written. req is nil when the
// bytes received could not be parsed.
type RequestObserver interface {
	ObserveRequest(req *HttpRequest, res *HttpResponse, elapsed time.Duration)
}

// PoolStats is a point-in-time view of the worker pool.
type PoolStats struct {
	Size      int
	Pending   int
	Active    int
	Completed uint64
}

// Server wires the Acceptor, WorkerPool and Router together.
//
// Fields:
//   - Host, Port: Address to bind; port 0 picks an ephemeral port, see Addr
//   - Backlog: Listen backlog passed to the socket
//   - WorkerCount: Number of worker goroutines (default: 8)
//   - BufferSize: Upper bound of the single read per connection (default: 8192)
//   - ReadTimeout: Deadline for that read; zero waits forever (default: 10s)
//   - Router: Route table every request is dispatched through
//   - Logger: Structured logger for the engine
//   - Observer: Optional hook called after each response is written
//
// Fields must be set before Start and are not read concurrently with it.
type Server struct {
	Host        string
	Port        int
	Backlog     int
	WorkerCount int
	BufferSize  int
	ReadTimeout time.Duration
	Router      *Router
	Logger      *slog.Logger
	Observer    RequestObserver

	lifecycle sync.Mutex
	pool      atomic.Pointer[WorkerPool]
	acceptor  atomic.Pointer[Acceptor]
	ctx       context.Context
	cancel    context.CancelFunc
	running   atomic.Bool
	connId    atomic.Uint64
}

// NewServer creates a server with default tuning. A nil router is replaced by an empty one.
func NewServer(host string, port int, router *Router) *Server {
	if router == nil {
		router = NewRouter()
	}
	return &Server{
		Host:        host,
		Port:        port,
		Backlog:     DefaultBacklog,
		WorkerCount: DefaultWorkerCount,
		BufferSize:  BUFFER_SIZE,
		ReadTimeout: DefaultReadTimeout,
		Router:      router,
		Logger:      slog.Default(),
	}
}

// Start starts the worker pool, binds the listening socket and begins accepting. It
// returns once the server is accepting; bind and listen failures are returned as
// *BindError and *ListenError and leave nothing running.
func (s *Server) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running.Load() {
		return ErrServerRunning
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	pool, err := NewWorkerPool(s.WorkerCount, s.Logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	acceptor := NewAcceptor(pool, s.serveConnection, s.Logger)
	if err := acceptor.Start(s.Host, s.Port, s.Backlog); err != nil {
		pool.Shutdown()
		cancel()
		return err
	}

	s.pool.Store(pool)
	s.acceptor.Store(acceptor)
	s.cancel = cancel
	s.running.Store(true)
	s.Logger.Info("server listening",
		"addr", acceptor.Addr().String(),
		"workers", s.WorkerCount,
		"backlog", s.Backlog,
		"routes", len(s.Router.Routes()),
	)
	return nil
}

// Stop stops accepting, finishes every connection already queued, and cancels the
// context handed to requests. Calling Stop on a stopped server does nothing.
func (s *Server) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	s.acceptor.Load().Stop()
	pool := s.pool.Load()
	pool.Shutdown()
	s.cancel()
	s.Logger.Info("server stopped", "completed", pool.Completed())
}

// Run starts the server and blocks until ctx is done, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Logger.Info("stopping server", "reason", context.Cause(ctx))
	s.Stop()
	return nil
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the bound listener address, or nil when the server is not running.
func (s *Server) Addr() net.Addr {
	acceptor := s.acceptor.Load()
	if acceptor == nil {
		return nil
	}
	return acceptor.Addr()
}

// Pool returns the worker pool of the current run, or nil before the first Start.
func (s *Server) Pool() *WorkerPool {
	return s.pool.Load()
}

// PoolStats returns the current pool counters. Before the first Start only Size is set.
func (s *Server) PoolStats() PoolStats {
	pool := s.Pool()
	if pool == nil {
		return PoolStats{Size: s.WorkerCount}
	}
	return PoolStats{
		Size:      pool.Size(),
		Pending:   pool.Pending(),
		Active:    pool.Active(),
		Completed: pool.Completed(),
	}
}

// serveConnection is the task run for each accepted connection: one bounded read, parse,
// dispatch, write, close.
func (s *Server) serveConnection(conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	id := s.connId.Add(1)
	ip := conn.RemoteAddr().String()
	log := s.Logger.With("conn", id, "ip", ip)

	buf := NewBuf(conn, s.BufferSize)
	if buf.BufferIn(s.ReadTimeout) == 0 {
		log.Debug("connection closed without data")
		return
	}

	req, res := s.dispatch(buf.Bytes(), ip, log)
	if err := res.Write(conn); err != nil {
		log.Warn("writing response", "error", err)
	}
	elapsed := time.Since(start)
	if req != nil {
		log.Info("request",
			"method", req.Method.String(),
			"path", req.Path,
			"status", int(res.StatusCode),
			"request_id", req.RequestId,
			"elapsed", elapsed,
		)
	}
	if s.Observer != nil {
		s.Observer.ObserveRequest(req, res, elapsed)
	}
}

// dispatch turns raw bytes into a response. It never fails: parse errors become 400 or 501,
// handler errors and panics become 500.
func (s *Server) dispatch(raw []byte, ip string, log *slog.Logger) (*HttpRequest, *HttpResponse) {
	req, err := ParseRequest(raw)
	if err != nil {
		log.Warn("could not parse request", "error", err)
		if errors.Is(err, ErrUnknownMethod) {
			return nil, ErrorJsonResponse(StatusNotImplemented, "Method not implemented")
		}
		return nil, ErrorJsonResponse(StatusBadRequest, "Bad request")
	}
	req.IpAddress = ip
	req.Context = s.ctx

	res := NewHttpResponse()
	if err := s.handle(req, res); err != nil {
		log.Error("handler failed",
			"method", req.Method.String(),
			"path", req.Path,
			"request_id", req.RequestId,
			"error", err,
		)
		res.SetError(StatusInternalServerError, "Internal server error")
	}
	return req, res
}

func (s *Server) handle(req *HttpRequest, res *HttpResponse) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	_, err = s.Router.Handle(req, res)
	return err
}
