//go:build !unix

package cloudvm

import (
	"fmt"
	"net"
)

// listen falls back to net.Listen where raw socket calls are unavailable. net.Listen binds
// and listens in one call, so every failure is reported as a BindError and the backlog is
// left to the operating system default.
func listen(host string, port int, backlog int) (net.Listener, error) {
	address := net.JoinHostPort(host, fmt.Sprint(port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, &BindError{Address: address, Err: err}
	}
	return ln, nil
}
