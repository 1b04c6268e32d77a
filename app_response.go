package cloudvm

import (
	"encoding/json"
	"net"
	"sort"
	"strconv"
	"strings"
)

// HttpResponse represents a complete HTTP response with headers, body, and status code.
// Middleware and handlers mutate the same HttpResponse during one dispatch; whatever it
// holds when the chain finishes (or short-circuits) is what gets serialized.
//
// Fields:
//   - StatusCode: HTTP status code
//   - Headers: Response headers; Content-Length is always computed and never taken from here
//   - Body: Response content, sent verbatim
type HttpResponse struct {
	StatusCode StatusCode
	Headers    map[string]string
	Body       []byte
}

// NewHttpResponse creates a new HttpResponse with default values.
// Returns a response with 200 OK status and empty headers/body.
func NewHttpResponse() *HttpResponse {
	return &HttpResponse{
		StatusCode: StatusOK,
		Headers:    make(map[string]string),
		Body:       []byte{},
	}
}

// StringResponse creates a plain text HTTP response.
func StringResponse(body string) *HttpResponse {
	res := NewHttpResponse()
	res.Headers["Content-Type"] = "text/plain"
	res.Body = []byte(body)
	return res
}

// ErrorJsonResponse creates a response with the standard {"error": message} body.
func ErrorJsonResponse(status StatusCode, message string) *HttpResponse {
	res := NewHttpResponse()
	res.SetError(status, message)
	return res
}

// InternalErrorResponse is the response sent for any failure inside middleware or a handler.
func InternalErrorResponse() *HttpResponse {
	return ErrorJsonResponse(StatusInternalServerError, "Internal server error")
}

// SetHeader adds or updates an HTTP response header.
func (res *HttpResponse) SetHeader(key string, value string) {
	res.Headers[key] = value
}

// SetStatus updates the HTTP status code for this response.
func (res *HttpResponse) SetStatus(status StatusCode) {
	res.StatusCode = status
}

// Json sets a pre-rendered JSON body and the matching Content-Type.
func (res *HttpResponse) Json(body string) {
	res.Body = []byte(body)
	res.SetHeader("Content-Type", "application/json")
}

// SetJson marshals value as the JSON body with the given status.
func (res *HttpResponse) SetJson(status StatusCode, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	res.StatusCode = status
	res.Body = body
	res.SetHeader("Content-Type", "application/json")
	return nil
}

// SetError replaces the body with {"error": message} and sets the status.
func (res *HttpResponse) SetError(status StatusCode, message string) {
	res.StatusCode = status
	res.Body = errorBody(message)
	res.SetHeader("Content-Type", "application/json")
}

// ApplyCors adds CORS headers to the response.
func (res *HttpResponse) ApplyCors(origin string, headers string, methods string) {
	res.SetHeader("Access-Control-Allow-Origin", origin)
	res.SetHeader("Access-Control-Allow-Headers", headers)
	res.SetHeader("Access-Control-Allow-Methods", methods)
}

// Serialize renders the response as it is written on the wire: the status line, the
// headers in key order followed by the computed Content-Length, a blank line, then the body.
func (res *HttpResponse) Serialize() []byte {
	var output strings.Builder
	output.WriteString("HTTP/1.1 ")
	output.WriteString(strconv.Itoa(int(res.StatusCode)))
	output.WriteString(" ")
	output.WriteString(res.StatusCode.Reason())
	output.WriteString("\r\n")

	keys := make([]string, 0, len(res.Headers))
	for key := range res.Headers {
		if strings.EqualFold(key, "Content-Length") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		output.WriteString(key)
		output.WriteString(": ")
		output.WriteString(res.Headers[key])
		output.WriteString("\r\n")
	}
	output.WriteString("Content-Length: ")
	output.WriteString(strconv.Itoa(len(res.Body)))
	output.WriteString("\r\n\r\n")
	output.Write(res.Body)
	return []byte(output.String())
}

// Write sends the serialized response over the connection, retrying short writes.
func (res *HttpResponse) Write(stream net.Conn) error {
	value := res.Serialize()
	write := 0
	for write < len(value) {
		n, err := stream.Write(value[write:])
		if err != nil {
			return err
		}
		write += n
	}
	return nil
}
