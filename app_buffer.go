package cloudvm

import (
	"net"
	"time"
)

// BUFFER_SIZE is the default upper bound for the single read a connection task performs.
const BUFFER_SIZE = 8192

// HttpBuf holds the bytes received from one connection.
// Only one read is ever made: a request larger than the buffer, or a body that arrives in a
// later TCP segment, is truncated to what the first read returned.
type HttpBuf struct {
	buffer []byte
	con    net.Conn
}

func NewBuf(con net.Conn, size int) *HttpBuf {
	if size <= 0 {
		size = BUFFER_SIZE
	}
	return &HttpBuf{buffer: make([]byte, 0, size), con: con}
}

// BufferIn performs the read, optionally bounded by a deadline, and returns the byte count.
// A read error is reported as zero bytes; the caller closes the connection either way.
func (buf *HttpBuf) BufferIn(timeout time.Duration) int {
	if timeout > 0 {
		buf.con.SetReadDeadline(time.Now().Add(timeout))
	}
	size, err := buf.con.Read(buf.buffer[:cap(buf.buffer)])
	if err != nil && size == 0 {
		return 0
	}
	buf.buffer = buf.buffer[:size]
	return size
}

func (buf *HttpBuf) Bytes() []byte {
	return buf.buffer
}
