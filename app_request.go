package cloudvm

import (
	"bytes"
	"context"
	"strings"
)

// HttpRequest represents a parsed HTTP request.
// An HttpRequest is owned by the worker task serving its connection and is never shared
// between tasks, so none of its fields are synchronized.
//
// Fields:
//   - Method: Request method from the closed HttpMethod set
//   - Path: Request path without the query string
//   - QueryString: Raw text after the first '?', undecoded
//   - Query: Decoded query parameters; always empty, decoding is intentionally not performed
//   - Headers: Header fields keyed exactly as received
//   - Params: Named path segments bound by the matching route pattern
//   - Body: Every byte after the header block, verbatim
//   - UserId: Authenticated subject, set by an auth middleware
//   - IpAddress: Remote address of the connection
//   - RequestId: Correlation id, set by a request id middleware
//   - Context: Server base context, cancelled once the server has fully stopped
type HttpRequest struct {
	Method      HttpMethod
	Path        string
	QueryString string
	Query       map[string]string
	Headers     map[string]string
	Params      map[string]string
	Body        []byte
	UserId      string
	IpAddress   string
	RequestId   string
	Context     context.Context
}

// GetHeader returns a header value. An exact key match wins; otherwise the first
// case-insensitive match is returned.
func (req *HttpRequest) GetHeader(key string) (string, bool) {
	if value, ok := req.Headers[key]; ok {
		return value, true
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// GetParam returns a path parameter bound by the matched route, or "" when absent.
func (req *HttpRequest) GetParam(key string) string {
	return req.Params[key]
}

// Ctx returns the request context, falling back to context.Background.
func (req *HttpRequest) Ctx() context.Context {
	if req.Context == nil {
		return context.Background()
	}
	return req.Context
}

// ParseRequest turns the bytes of one read into an HttpRequest.
//
// Grammar:
//
//	METHOD SP path[?query] SP version CRLF
//	*(Key: Value CRLF)
//	CRLF
//	body
//
// Header lines are split on their first colon; the value starts after the colon and one
// optional space, with a trailing carriage return trimmed. When the buffer ends before the
// blank line the headers read so far are kept and the body is empty. Content-Length is not
// consulted: whatever follows the blank line is the body.
//
// Malformed request lines and header lines return a *ParseError. An unsupported method
// returns a *ParseError wrapping ErrUnknownMethod.
func ParseRequest(raw []byte) (*HttpRequest, error) {
	if len(raw) == 0 {
		return nil, parseError("empty request")
	}
	lineEnd := bytes.IndexByte(raw, '\n')
	if lineEnd < 0 {
		return nil, parseError("request line not terminated")
	}
	line := strings.TrimSuffix(string(raw[:lineEnd]), "\r")
	rest := raw[lineEnd+1:]

	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, parseError("request line must be METHOD SP target SP version")
	}
	method, err := ParseMethod(parts[0])
	if err != nil {
		return nil, &ParseError{Reason: "method " + parts[0], Err: err}
	}
	if !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, parseError("unsupported protocol version " + parts[2])
	}

	req := HttpRequest{
		Method:  method,
		Path:    parts[1],
		Query:   map[string]string{},
		Headers: make(map[string]string),
		Params:  map[string]string{},
		Body:    []byte{},
	}
	qryIdx := strings.IndexByte(req.Path, '?')
	if qryIdx > -1 {
		req.QueryString = req.Path[qryIdx+1:]
		req.Path = req.Path[:qryIdx]
	}
	if !strings.HasPrefix(req.Path, "/") {
		return nil, parseError("request target must be an absolute path")
	}

	for len(rest) > 0 {
		end := bytes.IndexByte(rest, '\n')
		var header string
		if end < 0 {
			header = string(rest)
			rest = rest[:0]
		} else {
			header = string(rest[:end])
			rest = rest[end+1:]
		}
		header = strings.TrimSuffix(header, "\r")
		if header == "" {
			req.Body = append(req.Body, rest...)
			return &req, nil
		}
		colon := strings.IndexByte(header, ':')
		if colon <= 0 {
			return nil, parseError("malformed header line")
		}
		value := header[colon+1:]
		value = strings.TrimPrefix(value, " ")
		req.Headers[header[:colon]] = value
	}
	return &req, nil
}
