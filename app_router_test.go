package cloudvm

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathListFromString(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{
			name: "root",
			path: "/",
			want: []string{"", ""},
		},
		{
			name: "single",
			path: "/hello",
			want: []string{"", "hello"},
		},
		{
			name: "trailing slash",
			path: "/hello/world/test/",
			want: []string{"", "hello", "world", "test", ""},
		},
		{
			name: "multiple",
			path: "/hello/world/test",
			want: []string{"", "hello", "world", "test"},
		},
		{
			name: "identical segments",
			path: "/hello/test/test",
			want: []string{"", "hello", "test", "test"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PathListFromString(tt.path))
		})
	}
}

func TestRoutePatternMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		match   bool
		params  map[string]string
	}{
		{"literal", "/health", "/health", true, map[string]string{}},
		{"literal case sensitive", "/health", "/Health", false, nil},
		{"param", "/api/vms/:id", "/api/vms/507f1f77bcf86cd799439011", true, map[string]string{"id": "507f1f77bcf86cd799439011"}},
		{"extra segment", "/api/vms/:id", "/api/vms/507f/extra", false, nil},
		{"missing segment", "/api/vms/:id", "/api/vms", false, nil},
		{"trailing slash", "/api/vms", "/api/vms/", false, nil},
		{"empty param segment", "/api/vms/:id", "/api/vms/", true, map[string]string{"id": ""}},
		{"two params", "/a/:x/b/:y", "/a/1/b/2", true, map[string]string{"x": "1", "y": "2"}},
		{"literal mismatch after param", "/a/:x/b", "/a/1/c", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ok := CompilePattern(tt.pattern).Match(tt.path)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, tt.params, params)
		})
	}
}

func newTestRequest(method HttpMethod, path string) *HttpRequest {
	return &HttpRequest{
		Method:  method,
		Path:    path,
		Query:   map[string]string{},
		Headers: map[string]string{},
		Params:  map[string]string{},
		Body:    []byte{},
	}
}

func respond(body string) RouteHandlerFn {
	return func(req *HttpRequest, res *HttpResponse) error {
		res.Body = []byte(body)
		return nil
	}
}

func TestRouterFirstMatchWins(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Get, "/api/vms/:id", respond("by-id"))
	router.RegisterRoute(Get, "/api/vms/latest", respond("latest"))

	res := NewHttpResponse()
	matched, err := router.Handle(newTestRequest(Get, "/api/vms/latest"), res)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "by-id", string(res.Body))
}

func TestRouterMethodMustMatch(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Post, "/api/vms", respond("create"))
	router.RegisterRoute(Get, "/api/vms", respond("list"))

	res := NewHttpResponse()
	matched, err := router.Handle(newTestRequest(Get, "/api/vms"), res)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "list", string(res.Body))
}

func TestRouterBindsParams(t *testing.T) {
	router := NewRouter()
	var got string
	router.RegisterRoute(Get, "/api/vms/:id", func(req *HttpRequest, res *HttpResponse) error {
		got = req.GetParam("id")
		return nil
	})

	req := newTestRequest(Get, "/api/vms/507f1f77bcf86cd799439011")
	matched, err := router.Handle(req, NewHttpResponse())
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "507f1f77bcf86cd799439011", got)
	assert.Equal(t, map[string]string{"id": "507f1f77bcf86cd799439011"}, req.Params)
}

func TestRouterNotFound(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Get, "/api/vms/:id", respond("by-id"))

	req := newTestRequest(Get, "/api/vms/507f/extra")
	res := NewHttpResponse()
	matched, err := router.Handle(req, res)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, StatusNotFound, res.StatusCode)
	assert.Equal(t, `{"error": "Route not found"}`, string(res.Body))
	assert.Empty(t, req.Params)
}

func TestRouterMiddlewareOrder(t *testing.T) {
	router := NewRouter()
	var order []string
	record := func(name string) MiddlewareFn {
		return func(req *HttpRequest, res *HttpResponse) bool {
			order = append(order, name)
			return true
		}
	}
	router.AddGlobalMiddleware(record("global-1"))
	router.AddGlobalMiddleware(record("global-2"))
	router.RegisterRoute(Get, "/x", func(req *HttpRequest, res *HttpResponse) error {
		order = append(order, "handler")
		return nil
	}, record("route-1"), record("route-2"))

	matched, err := router.Handle(newTestRequest(Get, "/x"), NewHttpResponse())
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []string{"global-1", "global-2", "route-1", "route-2", "handler"}, order)
}

func TestRouterGlobalMiddlewareShortCircuit(t *testing.T) {
	router := NewRouter()
	routeMiddlewareRan, handlerRan, laterGlobalRan := false, false, false
	router.AddGlobalMiddleware(func(req *HttpRequest, res *HttpResponse) bool {
		res.SetError(StatusUnauthorized, "No authorization token provided")
		return false
	})
	router.AddGlobalMiddleware(func(req *HttpRequest, res *HttpResponse) bool {
		laterGlobalRan = true
		return true
	})
	router.RegisterRoute(Get, "/x", func(req *HttpRequest, res *HttpResponse) error {
		handlerRan = true
		return nil
	}, func(req *HttpRequest, res *HttpResponse) bool {
		routeMiddlewareRan = true
		return true
	})

	res := NewHttpResponse()
	matched, err := router.Handle(newTestRequest(Get, "/x"), res)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.False(t, laterGlobalRan)
	assert.False(t, routeMiddlewareRan)
	assert.False(t, handlerRan)

	expected := ErrorJsonResponse(StatusUnauthorized, "No authorization token provided")
	assert.Equal(t, expected, res)
}

func TestRouterRouteMiddlewareShortCircuit(t *testing.T) {
	router := NewRouter()
	handlerRan := false
	router.RegisterRoute(Delete, "/x", func(req *HttpRequest, res *HttpResponse) error {
		handlerRan = true
		return nil
	}, func(req *HttpRequest, res *HttpResponse) bool {
		res.SetError(StatusForbidden, "Forbidden")
		return false
	})

	res := NewHttpResponse()
	matched, err := router.Handle(newTestRequest(Delete, "/x"), res)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.False(t, handlerRan)
	assert.Equal(t, StatusForbidden, res.StatusCode)
}

func TestRouterHandlerError(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Get, "/x", func(req *HttpRequest, res *HttpResponse) error {
		return fmt.Errorf("store unavailable")
	})

	matched, err := router.Handle(newTestRequest(Get, "/x"), NewHttpResponse())
	assert.True(t, matched)
	assert.EqualError(t, err, "store unavailable")
}

func TestRouteGroup(t *testing.T) {
	router := NewRouter()
	guard := func(req *HttpRequest, res *HttpResponse) bool { return true }
	router.AddRouteGroup("/api/vms", NewRouteGroup(
		GetRoute("", respond("list")),
		GetRoute("/:id", respond("get")),
		DeleteRoute("/:id", respond("delete")),
	).Use(guard))

	routes := router.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "/api/vms", routes[0].Pattern.String())
	assert.Equal(t, "/api/vms/:id", routes[1].Pattern.String())
	assert.Equal(t, Delete, routes[2].Method)
	assert.Len(t, routes[2].Middleware, 1)

	res := NewHttpResponse()
	matched, err := router.Handle(newTestRequest(Delete, "/api/vms/42"), res)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "delete", string(res.Body))
}

func TestRouterPrintTree(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Get, "/health", respond("ok"))
	router.RegisterRoute(Post, "/api/vms", respond("ok"), func(*HttpRequest, *HttpResponse) bool { return true })

	var out strings.Builder
	router.PrintTree(&out)
	assert.Equal(t, "GET     /health\nPOST    /api/vms (1 middleware)\n", out.String())
}

func TestRouterConcurrentRegisterAndHandle(t *testing.T) {
	router := NewRouter()
	router.RegisterRoute(Get, "/stable", respond("stable"))

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				router.RegisterRoute(Get, fmt.Sprintf("/w%d/r%d", w, i), respond("dynamic"))
			}
		}(w)
	}
	for r := 0; r < writers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				res := NewHttpResponse()
				matched, err := router.Handle(newTestRequest(Get, "/stable"), res)
				assert.NoError(t, err)
				assert.True(t, matched)
				assert.Equal(t, "stable", string(res.Body))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, router.Routes(), 1+writers*perWriter)
	for w := 0; w < writers; w++ {
		res := NewHttpResponse()
		matched, _ := router.Handle(newTestRequest(Get, fmt.Sprintf("/w%d/r%d", w, perWriter-1)), res)
		assert.True(t, matched)
	}
}
