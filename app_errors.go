package cloudvm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPoolSize is returned by NewWorkerPool for a non-positive worker count.
	ErrInvalidPoolSize = errors.New("worker pool size must be greater than zero")

	// ErrPoolClosed is returned by Submit once Shutdown has been called.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrUnknownMethod reports a request-line method outside the supported set.
	ErrUnknownMethod = errors.New("unknown http method")

	// ErrServerRunning is returned by Start on a server that is already accepting.
	ErrServerRunning = errors.New("server is already running")
)

// BindError wraps the OS error raised while creating or binding the listening socket.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ListenError wraps the OS error raised while marking the bound socket as listening.
type ListenError struct {
	Address string
	Err     error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("listen %s: %v", e.Address, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// ParseError describes a request that could not be turned into an HttpRequest.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "malformed request: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed request: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(reason string) *ParseError {
	return &ParseError{Reason: reason}
}
