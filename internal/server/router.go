package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// MuxRouter implements [Router] on a gorilla/mux router.
//
// Middleware added with Use runs only for matched routes, in the order it was added.
type MuxRouter struct {
	mux *mux.Router
}

// NewRouter creates a [MuxRouter] whose unmatched paths and methods answer in the callable
// error format.
func NewRouter() *MuxRouter {
	m := mux.NewRouter()
	m.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewCallableError(CodeNotFound, "No handler for %s.", r.URL.Path))
	})
	m.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Error: NewCallableError(CodeInvalidArgument, "Method %s not allowed.", r.Method),
		})
	})
	return &MuxRouter{mux: m}
}

// Use adds [Middleware] to the router's middleware stack.
func (r *MuxRouter) Use(middleware ...Middleware) {
	for _, m := range middleware {
		r.mux.Use(mux.MiddlewareFunc(m))
	}
}

// Handle registers handler for method and path. Path may hold {var} patterns, read with mux.Vars.
func (r *MuxRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Handle(path, handler).Methods(method)
}

// Handler registers every route of handler for all methods.
func (r *MuxRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// Group returns a sub-router for paths under prefix with its own extra middleware.
func (r *MuxRouter) Group(prefix string, middleware ...Middleware) Router {
	sub := &MuxRouter{mux: r.mux.PathPrefix(prefix).Subrouter()}
	sub.Use(middleware...)
	return sub
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *MuxRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
