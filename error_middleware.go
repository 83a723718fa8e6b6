package octosite

import (
	"context"
)

// RequestErrorKey is the context key used to attach request information to errors
type RequestErrorKey struct{}

// RequestErrorInfo contains information about the request for error context
type RequestErrorInfo struct {
	RequestID string
	Method    string
	Path      string
	IP        string
	Headers   map[string]string
}

// Headers worth keeping in error logs; nothing carrying credentials.
var safeHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Content-Type",
	"Content-Length",
	"Origin",
	"Referer",
	HeaderXRequestID,
	HeaderXForwardedProto,
}

// ErrorContextMiddleware adds request context to all errors that occur in handlers
func ErrorContextMiddleware[V any]() MiddlewareFunc[V] {
	return func(next HandlerFunc[V]) HandlerFunc[V] {
		return func(ctx *Ctx[V]) error {
			info := &RequestErrorInfo{
				RequestID: ctx.UUID,
				Method:    ctx.Request.Method,
				Path:      ctx.Request.URL.Path,
				IP:        ctx.ClientIP(),
				Headers:   make(map[string]string),
			}
			for _, header := range safeHeaders {
				if value := ctx.GetHeader(header); value != "" {
					info.Headers[header] = value
				}
			}

			ctx.Request = ctx.Request.WithContext(
				context.WithValue(ctx.Request.Context(), RequestErrorKey{}, info),
			)
			return next(ctx)
		}
	}
}

// RequestInfo returns the information attached by ErrorContextMiddleware.
func RequestInfo(ctx context.Context) (*RequestErrorInfo, bool) {
	info, ok := ctx.Value(RequestErrorKey{}).(*RequestErrorInfo)
	return info, ok
}

// LogErrorsMiddleware logs every request answered with a status >= 400,
// using the context collected by ErrorContextMiddleware.
func LogErrorsMiddleware[V any]() MiddlewareFunc[V] {
	return func(next HandlerFunc[V]) HandlerFunc[V] {
		return func(ctx *Ctx[V]) error {
			err := next(ctx)

			status := ctx.ResponseWriter.Status
			if err != nil && !ctx.IsDone() {
				status = StatusOf(err)
			}
			if status < 400 {
				return err
			}

			info, ok := RequestInfo(ctx.Context())
			if !ok {
				return err
			}
			event := logger.Warn()
			if status >= 500 {
				event = logger.Error()
			}
			event = event.
				Int("status_code", status).
				Str("request_id", info.RequestID).
				Str("path", info.Path).
				Str("method", info.Method).
				Str("ip", info.IP)
			for k, v := range info.Headers {
				event = event.Str("header_"+k, v)
			}
			event.Msg("[octosite] Request resulted in error")
			return err
		}
	}
}
