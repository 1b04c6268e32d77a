package cloudvm

// RouteGroup is a collection of related routes mounted together under a common prefix.
//
// Fields:
//   - Routes: Grouped routes with their methods, paths, handlers, and middleware
//
// Example:
//
//	vmRoutes := cloudvm.NewRouteGroup(
//	    cloudvm.GetRoute("", listVMs),
//	    cloudvm.GetRoute("/:id", getVM),
//	    cloudvm.DeleteRoute("/:id", deleteVM),
//	)
//	router.AddRouteGroup("/api/vms", vmRoutes)
type RouteGroup struct {
	Routes []GroupedRoute
}

// GroupedRoute is a single route definition inside a RouteGroup. Route is relative to the
// prefix the group is mounted at.
type GroupedRoute struct {
	Route      string
	Method     HttpMethod
	Handler    RouteHandlerFn
	Middleware []MiddlewareFn
}

func NewRouteGroup(routes ...GroupedRoute) *RouteGroup {
	return &RouteGroup{
		Routes: routes,
	}
}

// Use prepends middleware to every route already in the group.
func (rg *RouteGroup) Use(middleware ...MiddlewareFn) *RouteGroup {
	for i := range rg.Routes {
		rg.Routes[i].Middleware = append(append([]MiddlewareFn{}, middleware...), rg.Routes[i].Middleware...)
	}
	return rg
}

// AddRouteGroup registers every route of the group under prefix, keeping the group's order.
func (r *Router) AddRouteGroup(prefix string, rg *RouteGroup) {
	for _, route := range rg.Routes {
		r.RegisterRoute(route.Method, prefix+route.Route, route.Handler, route.Middleware...)
	}
}

func GetRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Get, Handler: handler, Middleware: middleware}
}

func PostRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Post, Handler: handler, Middleware: middleware}
}

func PutRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Put, Handler: handler, Middleware: middleware}
}

func PatchRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Patch, Handler: handler, Middleware: middleware}
}

func DeleteRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Delete, Handler: handler, Middleware: middleware}
}

func OptionsRoute(path string, handler RouteHandlerFn, middleware ...MiddlewareFn) GroupedRoute {
	return GroupedRoute{Route: path, Method: Options, Handler: handler, Middleware: middleware}
}
