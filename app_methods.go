package cloudvm

// HttpMethod represents the HTTP request method used for routing and handler dispatch.
// The set is closed: a token outside of it never becomes an HttpMethod, it is reported
// through ErrUnknownMethod by ParseMethod instead.
type HttpMethod string

// HTTP method constants representing all supported request verbs.
//
// Supported methods:
//   - Get: Retrieve data, should be idempotent and safe
//   - Post: Create new resources, non-idempotent
//   - Put: Update/replace entire resources, idempotent
//   - Patch: Partial resource updates
//   - Delete: Remove resources, idempotent
//   - Options: CORS preflight, usually answered by a global middleware
const (
	Get     HttpMethod = "GET"
	Post    HttpMethod = "POST"
	Put     HttpMethod = "PUT"
	Patch   HttpMethod = "PATCH"
	Delete  HttpMethod = "DELETE"
	Options HttpMethod = "OPTIONS"
)

// HttpMethods provides the string-to-HttpMethod mapping used by the request parser.
// Lookups are exact and case-sensitive, matching the request-line grammar.
var (
	HttpMethods = map[string]HttpMethod{
		"GET":     Get,
		"POST":    Post,
		"PUT":     Put,
		"PATCH":   Patch,
		"DELETE":  Delete,
		"OPTIONS": Options,
	}
)

func (m HttpMethod) String() string {
	return string(m)
}

// ParseMethod converts a request-line token into an HttpMethod.
// Unsupported tokens return ErrUnknownMethod rather than a placeholder value.
func ParseMethod(token string) (HttpMethod, error) {
	method, ok := HttpMethods[token]
	if !ok {
		return "", ErrUnknownMethod
	}
	return method, nil
}
