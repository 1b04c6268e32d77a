//go:build unix

package cloudvm

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen creates the listening socket step by step so that bind and listen failures are
// reported separately and the backlog is honoured. The descriptor is handed to the runtime
// poller through net.FileListener.
func listen(host string, port int, backlog int) (net.Listener, error) {
	address := net.JoinHostPort(host, fmt.Sprint(port))
	ip, err := resolveHost(host)
	if err != nil {
		return nil, &BindError{Address: address, Err: err}
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		addr := &unix.SockaddrInet4{Port: port}
		copy(addr.Addr[:], ip4)
		sa = addr
	} else {
		family = unix.AF_INET6
		addr := &unix.SockaddrInet6{Port: port}
		copy(addr.Addr[:], ip.To16())
		sa = addr
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, &BindError{Address: address, Err: os.NewSyscallError("socket", err)}
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, &BindError{Address: address, Err: os.NewSyscallError("setsockopt", err)}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, &BindError{Address: address, Err: os.NewSyscallError("bind", err)}
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, &ListenError{Address: address, Err: os.NewSyscallError("listen", err)}
	}

	file := os.NewFile(uintptr(fd), "cloudvm-listener")
	defer file.Close()
	ln, err := net.FileListener(file)
	if err != nil {
		return nil, &ListenError{Address: address, Err: err}
	}
	return ln, nil
}

func resolveHost(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}
