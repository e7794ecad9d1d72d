package server

import (
	"net/http"
	"strings"
)

// CallbackRouter routes requests for the loopback authorization server.
//
// Routes are registered as method patterns on an [http.ServeMux], so a request with the wrong method gets
// 405 with an Allow header. Middleware wraps the whole router, unrouted requests included.
type CallbackRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewCallbackRouter creates an empty [CallbackRouter].
func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{mux: http.NewServeMux()}
}

// Use appends middleware. The first added runs outermost.
func (r *CallbackRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle serves handler for method requests to path. GET also answers HEAD.
func (r *CallbackRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Handle(strings.ToUpper(method)+" "+path, handler)
}

// Handler serves every route of a [Handler]. Authorization servers redirect the browser, so routes take GET.
func (r *CallbackRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.Handle(http.MethodGet, route, handler)
	}
}

func (r *CallbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.mux
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	h.ServeHTTP(w, req)
}
