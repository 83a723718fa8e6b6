package octosite

import (
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type HandlerFunc[V any] func(*Ctx[V]) error
type MiddlewareFunc[V any] func(HandlerFunc[V]) HandlerFunc[V]

// Router sends every request to exactly one handler: the group owning the
// longest matching path prefix, or the fallback handler.
type Router[V any] struct {
	groups     []*Group[V]
	fallback   HandlerFunc[V]
	middleware []MiddlewareFunc[V]
	debug      bool
}

type routerOptions struct {
	debug bool
}

// RouterOption configures a Router at construction time.
type RouterOption func(*routerOptions)

// WithDebug makes the router expose raw error text in 500 responses.
func WithDebug(enabled bool) RouterOption {
	return func(o *routerOptions) {
		o.debug = enabled
	}
}

func NewRouter[V any](opts ...RouterOption) *Router[V] {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Router[V]{debug: o.debug}
}

// Use adds a global middleware to the router
func (r *Router[V]) Use(mw MiddlewareFunc[V]) {
	r.middleware = append(r.middleware, mw)
}

// Debug reports whether the router was built in debug mode.
func (r *Router[V]) Debug() bool {
	return r.debug
}

// Fallback sets the handler for paths outside every group.
func (r *Router[V]) Fallback(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	r.fallback = applyMiddleware(handler, middleware)
}

// Group represents the routes under a reserved path prefix
type Group[V any] struct {
	prefix     string
	router     *Router[V]
	middleware []MiddlewareFunc[V]
	handlers   map[string]HandlerFunc[V]
	methods    []string
}

// Group returns the group for prefix, creating it on first use.
func (r *Router[V]) Group(prefix string, middleware ...MiddlewareFunc[V]) *Group[V] {
	for _, g := range r.groups {
		if g.prefix == prefix {
			g.middleware = append(g.middleware, middleware...)
			return g
		}
	}
	g := &Group[V]{
		prefix:     prefix,
		router:     r,
		middleware: middleware,
		handlers:   make(map[string]HandlerFunc[V]),
	}
	r.groups = append(r.groups, g)
	// Longest prefix first so nested prefixes win.
	sort.SliceStable(r.groups, func(i, j int) bool {
		return len(r.groups[i].prefix) > len(r.groups[j].prefix)
	})
	return g
}

func (g *Group[V]) GET(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	g.Handle(http.MethodGet, handler, middleware...)
}

func (g *Group[V]) HEAD(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	g.Handle(http.MethodHead, handler, middleware...)
}

func (g *Group[V]) POST(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	g.Handle(http.MethodPost, handler, middleware...)
}

func (g *Group[V]) PUT(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	g.Handle(http.MethodPut, handler, middleware...)
}

func (g *Group[V]) OPTIONS(handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	g.Handle(http.MethodOptions, handler, middleware...)
}

// Handle registers handler for method under the group prefix.
func (g *Group[V]) Handle(method string, handler HandlerFunc[V], middleware ...MiddlewareFunc[V]) {
	method = strings.ToUpper(method)
	if _, exists := g.handlers[method]; exists {
		panic("route already defined: " + method + " " + g.prefix)
	}
	chain := make([]MiddlewareFunc[V], 0, len(g.middleware)+len(middleware))
	chain = append(chain, g.middleware...)
	chain = append(chain, middleware...)
	g.handlers[method] = applyMiddleware(handler, chain)
	g.methods = append(g.methods, method)
}

func (g *Group[V]) methodNotAllowed(ctx *Ctx[V]) error {
	ctx.SetHeader(HeaderAllow, strings.Join(g.methods, ", "))
	return New(ErrMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

// search finds the handler for a request path and method
func (r *Router[V]) search(method, path string) HandlerFunc[V] {
	for _, g := range r.groups {
		if !strings.HasPrefix(path, g.prefix) {
			continue
		}
		if handler, ok := g.handlers[method]; ok {
			return handler
		}
		return g.methodNotAllowed
	}
	if r.fallback != nil {
		return r.fallback
	}
	return notFound[V]
}

func newRequestID() string {
	return uuid.New().String()
}

func notFound[V any](ctx *Ctx[V]) error {
	return New(ErrNotFound, http.StatusText(http.StatusNotFound))
}

// applyMiddleware wraps the handler with middleware functions
func applyMiddleware[V any](handler HandlerFunc[V], middleware []MiddlewareFunc[V]) HandlerFunc[V] {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// ServeHTTP implements the http.Handler interface
func (r *Router[V]) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := &Ctx[V]{
		ResponseWriter: NewResponseWriterWrapper(w),
		Request:        req,
		StartTime:      time.Now().UnixNano(),
		UUID:           req.Header.Get(HeaderXRequestID),
	}
	if ctx.UUID == "" {
		ctx.UUID = newRequestID()
	}

	defer r.recoverPanic(ctx)

	handler := applyMiddleware(r.search(req.Method, req.URL.Path), r.middleware)
	if err := handler(ctx); err != nil {
		r.handleError(ctx, err)
	}
}

// handleError is the single recovery layer for errors escaping a handler.
func (r *Router[V]) handleError(ctx *Ctx[V], err error) {
	var siteErr *SiteError
	clientErr := asSiteError(err, &siteErr) && siteErr.StatusCode >= 400 && siteErr.StatusCode < 500
	// Client errors are reported by LogErrorsMiddleware at warn level.
	if !clientErr {
		LogErrorWithPathIP(logger, err, ctx.Request.URL.Path, ctx.ClientIP())
	}
	if ctx.IsDone() {
		return
	}
	if clientErr {
		ctx.SendString(siteErr.StatusCode, siteErr.Message)
		return
	}
	message := "Internal Error"
	if r.debug {
		message = err.Error()
	}
	ctx.SendString(http.StatusInternalServerError, message)
}

func (r *Router[V]) recoverPanic(ctx *Ctx[V]) {
	recovered := recover()
	if recovered == nil {
		return
	}
	if recovered == http.ErrAbortHandler {
		// Client went away; let net/http drop the connection quietly.
		panic(recovered)
	}

	LogPanicWithRequestInfo(logger, recovered, debug.Stack(), ctx.Request.URL.Path, ctx.Request.Method, ctx.ClientIP())
	if ctx.IsDone() {
		return
	}
	message := "Internal Error"
	if r.debug {
		message = panicError(recovered).Error()
	}
	ctx.SendString(http.StatusInternalServerError, message)
}
