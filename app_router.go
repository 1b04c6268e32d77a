package cloudvm

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// RouteHandlerFn handles a matched request by mutating the response.
// A returned error (or a panic) is turned into a 500 response by the server.
type RouteHandlerFn func(*HttpRequest, *HttpResponse) error

// MiddlewareFn runs before a handler. Returning false stops the chain: no further
// middleware and no handler run, and the response as mutated so far is final.
type MiddlewareFn func(*HttpRequest, *HttpResponse) bool

type patternSegment struct {
	literal string
	param   string
	isParam bool
}

// RoutePattern is a compiled path template made of literal and ":name" segments.
type RoutePattern struct {
	raw      string
	segments []patternSegment
}

// CompilePattern splits a pattern such as "/api/vms/:id" into its segments.
func CompilePattern(pattern string) RoutePattern {
	comps := PathListFromString(pattern)
	segments := make([]patternSegment, len(comps))
	for i, comp := range comps {
		if strings.HasPrefix(comp, ":") {
			segments[i] = patternSegment{param: comp[1:], isParam: true}
		} else {
			segments[i] = patternSegment{literal: comp}
		}
	}
	return RoutePattern{raw: pattern, segments: segments}
}

// Match reports whether path fits the pattern. Segment counts must be equal, ":name"
// segments bind the corresponding path segment and every other segment must be equal.
// Bound parameters are only returned on a match.
func (p RoutePattern) Match(path string) (map[string]string, bool) {
	comps := PathListFromString(path)
	if len(comps) != len(p.segments) {
		return nil, false
	}
	for i, seg := range p.segments {
		if !seg.isParam && seg.literal != comps[i] {
			return nil, false
		}
	}
	params := map[string]string{}
	for i, seg := range p.segments {
		if seg.isParam {
			params[seg.param] = comps[i]
		}
	}
	return params, true
}

func (p RoutePattern) String() string {
	return p.raw
}

// Route is one registered (method, pattern) pair with its handler and route-scoped middleware.
type Route struct {
	Method     HttpMethod
	Pattern    RoutePattern
	Handler    RouteHandlerFn
	Middleware []MiddlewareFn
}

type routeTable struct {
	routes     []*Route
	middleware []MiddlewareFn
}

// Router holds the route table and the global middleware chain.
//
// Registration is copy-on-write: writers serialize on mu, copy the current table, append,
// and publish the copy. Handle loads one immutable snapshot and never takes a lock, so
// concurrent dispatches proceed in parallel and always see a complete table.
type Router struct {
	mu    sync.Mutex
	table atomic.Pointer[routeTable]
}

func NewRouter() *Router {
	r := &Router{}
	r.table.Store(&routeTable{})
	return r
}

func (r *Router) update(fn func(next *routeTable)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.table.Load()
	next := &routeTable{
		routes:     append(make([]*Route, 0, len(current.routes)+1), current.routes...),
		middleware: append(make([]MiddlewareFn, 0, len(current.middleware)+1), current.middleware...),
	}
	fn(next)
	r.table.Store(next)
}

// RegisterRoute appends a route. Routes are matched in registration order.
func (r *Router) RegisterRoute(method HttpMethod, pattern string, handler RouteHandlerFn, middleware ...MiddlewareFn) {
	route := &Route{
		Method:     method,
		Pattern:    CompilePattern(pattern),
		Handler:    handler,
		Middleware: append([]MiddlewareFn{}, middleware...),
	}
	r.update(func(next *routeTable) {
		next.routes = append(next.routes, route)
	})
}

// AddGlobalMiddleware appends a middleware that runs before route matching for every request.
func (r *Router) AddGlobalMiddleware(mw MiddlewareFn) {
	r.update(func(next *routeTable) {
		next.middleware = append(next.middleware, mw)
	})
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	return append([]*Route{}, r.table.Load().routes...)
}

// Handle dispatches one request.
//
//  1. Global middleware runs in registration order; a false return ends the dispatch.
//  2. The first route whose method equals the request method and whose pattern matches the
//     path is selected and its parameters are bound into req.Params.
//  3. Route middleware runs in registration order with the same short-circuit rule.
//  4. The handler runs; its error is returned to the caller.
//
// matched is true only when a handler ran. Without a matching route the response becomes
// 404 {"error": "Route not found"}.
func (r *Router) Handle(req *HttpRequest, res *HttpResponse) (bool, error) {
	table := r.table.Load()
	for _, mw := range table.middleware {
		if !mw(req, res) {
			return false, nil
		}
	}
	for _, route := range table.routes {
		if route.Method != req.Method {
			continue
		}
		params, ok := route.Pattern.Match(req.Path)
		if !ok {
			continue
		}
		req.Params = params
		for _, mw := range route.Middleware {
			if !mw(req, res) {
				return false, nil
			}
		}
		return true, route.Handler(req, res)
	}
	res.SetError(StatusNotFound, "Route not found")
	return false, nil
}

// PrintTree writes one line per route in match order.
func (r *Router) PrintTree(w io.Writer) {
	for _, route := range r.Routes() {
		fmt.Fprintf(w, "%-7s %s", route.Method, route.Pattern)
		if n := len(route.Middleware); n > 0 {
			fmt.Fprintf(w, " (%d middleware)", n)
		}
		fmt.Fprintln(w)
	}
}
