package cloudvm

import (
	"encoding/json"
	"strings"
)

// PathListFromString splits a URL path on every forward slash, keeping empty components.
// Route patterns and request paths go through the same function, so two paths only match
// when they produce the same number of components.
//
// Examples:
//   - "/api/vms/123" → ["", "api", "vms", "123"]
//   - "/" → ["", ""]
//   - "/api/vms/" → ["", "api", "vms", ""]
//
// Trailing slashes are significant: "/api/vms/" does not match the pattern "/api/vms".
func PathListFromString(path string) []string {
	return strings.Split(path, "/")
}

// errorBody renders the standard JSON error body, e.g. {"error": "Route not found"}.
func errorBody(message string) []byte {
	quoted, _ := json.Marshal(message)
	body := make([]byte, 0, len(quoted)+11)
	body = append(body, `{"error": `...)
	body = append(body, quoted...)
	body = append(body, '}')
	return body
}
