package cloudvm

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// Acceptor owns the listening socket. Its accept loop runs on a dedicated goroutine and
// submits one task per accepted connection to the WorkerPool.
type Acceptor struct {
	pool   *WorkerPool
	serve  func(net.Conn)
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	done     chan struct{}
}

// NewAcceptor creates an acceptor that hands every accepted connection to serve on pool.
func NewAcceptor(pool *WorkerPool, serve func(net.Conn), logger *slog.Logger) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acceptor{
		pool:   pool,
		serve:  serve,
		logger: logger,
	}
}

// Start creates, binds and listens on host:port with the given backlog, then starts the
// accept loop. Failures are returned as *BindError or *ListenError.
func (a *Acceptor) Start(host string, port int, backlog int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrServerRunning
	}
	ln, err := listen(host, port, backlog)
	if err != nil {
		return err
	}
	a.listener = ln
	a.running = true
	a.done = make(chan struct{})
	go a.acceptLoop(ln, a.done)
	return nil
}

func (a *Acceptor) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !a.isRunning() {
				return
			}
			if backoff == 0 {
				backoff = acceptBackoffMin
			} else if backoff *= 2; backoff > acceptBackoffMax {
				backoff = acceptBackoffMax
			}
			a.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		a.logger.Debug("dispatching connection", "ip", conn.RemoteAddr().String())
		if err := a.pool.Submit(func() { a.serve(conn) }); err != nil {
			a.logger.Warn("connection rejected", "ip", conn.RemoteAddr().String(), "error", err)
			conn.Close()
		}
	}
}

func (a *Acceptor) isRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stop closes the listener, which unblocks Accept, and waits for the accept loop to exit.
// Calling Stop on a stopped acceptor does nothing.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	ln, done := a.listener, a.done
	a.mu.Unlock()

	if err := ln.Close(); err != nil {
		a.logger.Warn("closing listener", "error", err)
	}
	<-done
}

// Addr returns the bound address, or nil when the acceptor is not running.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	return a.listener.Addr()
}
